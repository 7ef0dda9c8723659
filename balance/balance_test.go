package balance_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/feeledger/balance"
	"github.com/xraph/feeledger/types"
)

var (
	alice = common.HexToAddress("0x1000000000000000000000000000000000000001")
	bob   = common.HexToAddress("0x2000000000000000000000000000000000000002")
	carol = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

func amt(n uint64) types.Amount { return types.NewAmount(n) }

func seeded(t *testing.T) *balance.Ledger {
	t.Helper()
	l := balance.New()
	require.NoError(t, l.Mint(alice, amt(1000)))
	return l
}

func TestMintAndTransfer(t *testing.T) {
	l := seeded(t)
	assert.Equal(t, "1000", l.TotalSupply().String())

	require.NoError(t, l.TransferNet(alice, bob, amt(400)))
	assert.Equal(t, "600", l.BalanceOf(alice).String())
	assert.Equal(t, "400", l.BalanceOf(bob).String())
	assert.Equal(t, "1000", l.TotalSupply().String())
	require.NoError(t, l.CheckConservation())
}

func TestTransferInsufficientBalanceLeavesStateUntouched(t *testing.T) {
	l := seeded(t)

	err := l.TransferNet(alice, bob, amt(1001))
	require.ErrorIs(t, err, balance.ErrInsufficientBalance)
	assert.Equal(t, "1000", l.BalanceOf(alice).String())
	assert.True(t, l.BalanceOf(bob).IsZero())
}

func TestBurnShrinksSupply(t *testing.T) {
	l := seeded(t)
	require.NoError(t, l.Burn(alice, amt(250)))
	assert.Equal(t, "750", l.TotalSupply().String())
	assert.Equal(t, "750", l.BalanceOf(alice).String())
	require.NoError(t, l.CheckConservation())

	require.ErrorIs(t, l.Burn(bob, amt(1)), balance.ErrInsufficientBalance)
}

func TestPrepareIsAllOrNothing(t *testing.T) {
	tests := []struct {
		name     string
		postings []balance.Posting
		wantErr  error
	}{
		{
			name: "taxed transfer",
			postings: []balance.Posting{
				balance.Debit(alice, amt(100)),
				balance.Credit(bob, amt(95)),
				balance.Credit(carol, amt(5)),
			},
		},
		{
			name: "second leg underflows",
			postings: []balance.Posting{
				balance.Debit(alice, amt(100)),
				balance.Credit(bob, amt(100)),
				balance.Debit(bob, amt(101)),
				balance.Credit(carol, amt(101)),
			},
			wantErr: balance.ErrInsufficientBalance,
		},
		{
			name: "credits exceed debits",
			postings: []balance.Posting{
				balance.Debit(alice, amt(10)),
				balance.Credit(bob, amt(11)),
			},
			wantErr: balance.ErrUnbalanced,
		},
		{
			name:     "lone credit",
			postings: []balance.Posting{balance.Credit(bob, amt(1))},
			wantErr:  balance.ErrUnbalanced,
		},
		{
			name:     "zero address",
			postings: balance.Move(alice, common.Address{}, amt(1)),
			wantErr:  balance.ErrZeroAddress,
		},
		{
			name:     "unknown op",
			postings: []balance.Posting{{Account: alice, Op: "steal", Amount: amt(1)}},
			wantErr:  balance.ErrUnknownOp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := seeded(t)
			b, err := l.Prepare(tt.postings...)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, b)
				assert.Equal(t, "1000", l.BalanceOf(alice).String())
				return
			}
			require.NoError(t, err)

			// Staging does not touch the ledger.
			assert.Equal(t, "1000", l.BalanceOf(alice).String())
			assert.Equal(t, "95", b.BalanceOf(bob).String())

			b.Commit()
			b.Commit()
			assert.Equal(t, "900", l.BalanceOf(alice).String())
			assert.Equal(t, "95", l.BalanceOf(bob).String())
			assert.Equal(t, "5", l.BalanceOf(carol).String())
			require.NoError(t, l.CheckConservation())
			assert.Len(t, b.Postings(), 3)
		})
	}
}

func TestCreditOverflow(t *testing.T) {
	l := balance.New()
	maxAmt := types.MustParseAmount("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	require.NoError(t, l.Mint(alice, maxAmt))
	require.ErrorIs(t, l.Mint(bob, amt(1)), balance.ErrOverflow)
}

func TestExclusionAndAccounts(t *testing.T) {
	l := seeded(t)
	require.NoError(t, l.TransferNet(alice, bob, amt(1)))

	l.SetExcluded(carol, true)
	l.SetExcluded(alice, true)
	assert.True(t, l.IsExcluded(carol))
	assert.Equal(t, []common.Address{alice, carol}, l.Excluded())

	accounts := l.Accounts()
	require.Len(t, accounts, 3)
	assert.Equal(t, alice, accounts[0].Address)
	assert.True(t, accounts[0].ExcludedFromFees)
	assert.Equal(t, bob, accounts[1].Address)
	assert.False(t, accounts[1].ExcludedFromFees)
	assert.Equal(t, carol, accounts[2].Address)
	assert.True(t, accounts[2].Balance.IsZero())

	l.SetExcluded(carol, false)
	assert.False(t, l.IsExcluded(carol))
	assert.Len(t, l.Accounts(), 2)
}
