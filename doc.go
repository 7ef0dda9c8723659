// Package feeledger provides a token fee engine for Go applications.
//
// Feeledger is designed as a library, not a service. It keeps a balance ledger
// for a fungible token, withholds a fee on taxed transfers, and later
// processes the accrued fees: part is burned, part is converted through a
// swap router for liquidity, and the rest is apportioned among weighted fee
// collectors. It provides:
//
//   - Overflow-checked 256-bit balances with supply conservation
//   - Buy, sell and transfer fee rates bounded by policy.MaxFeeBps
//   - Burn/liquidity/collector split ratios that always sum to 10000
//   - Proportional collector payouts where the last collector takes rounding dust
//   - All-or-nothing fee processing with a minimum-output guard
//   - Per-collector failure isolation for converted distributions, with retry
//   - An append-only journal that rebuilds state exactly on restart
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/feeledger"
//	    "github.com/xraph/feeledger/store/memory"
//	)
//
//	admin := common.HexToAddress("0x...")
//	engine := feeledger.New(memory.New(),
//	    feeledger.WithGenesis(feeledger.DefaultGenesis(admin)),
//	    feeledger.WithRouter(router),
//	)
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// # Callers
//
// Privileged operations read the caller from the context. Only the
// administrator may change fee configuration, collectors, exclusions,
// settings, or trigger processing:
//
//	ctx = feeledger.WithCaller(ctx, admin)
//	err := engine.SetTaxRates(ctx, 300, 400)
//
// # Fees
//
// A transfer between two non-excluded accounts is classified as a buy, sell
// or plain transfer. The matching rate is withheld and credited to the fee
// holding account; the recipient gets the net. Rounding always favors the
// recipient.
//
//	receipt, err := engine.Transfer(ctx, alice, pool, feeledger.NewAmount(1_000_000))
//	// receipt.Fee == 50_000 at the default 5% sell rate
//
// ProcessFees and DistributeFees move accrued fees out of the holding
// account. ProcessFees is all or nothing. DistributeFees with conversion
// pays each collector independently and returns a *PartialDistributionError
// naming the collectors left unpaid.
//
// # TypeID
//
// Lots and journal entries use TypeID identifiers:
//
//	lot_01h2xcejqtf2nbrexx3vqjhp41   // Lot ID
//	jrnl_01h455vb4pex5vsknk084sn02q  // Journal entry ID
package feeledger
