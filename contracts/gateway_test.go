package contracts

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"loopfan-backend/config"
)

var (
	tipJarAddr  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	nftAddr     = common.HexToAddress("0x1000000000000000000000000000000000000002")
	registryAdr = common.HexToAddress("0x1000000000000000000000000000000000000003")
	rewardsAddr = common.HexToAddress("0x1000000000000000000000000000000000000004")
	fanAddr     = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	usdcAddr    = common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e")
)

// fakeBackend answers contract calls by selector and serves logs from memory.
// Methods outside the embedded interface's use in these tests panic.
type fakeBackend struct {
	Backend

	mu          sync.Mutex
	head        uint64
	logs        []types.Log
	results     map[[4]byte][]byte
	filterCalls int

	nonce    uint64
	sent     []*types.Transaction
	pool     map[common.Hash]*types.Transaction
	receipts map[common.Hash]*types.Receipt
	rpcErr   error
	// onSend, when set, mines the transaction as soon as it is broadcast.
	onSend func(tx *types.Transaction) *types.Receipt
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		results:  make(map[[4]byte][]byte),
		pool:     make(map[common.Hash]*types.Transaction),
		receipts: make(map[common.Hash]*types.Receipt),
	}
}

func (f *fakeBackend) setResult(t *testing.T, method string, values ...interface{}) {
	t.Helper()
	m := findMethod(t, method)
	packed, err := m.Outputs.Pack(values...)
	require.NoError(t, err)
	var sel [4]byte
	copy(sel[:], m.ID)
	f.results[sel] = packed
}

func findMethod(t *testing.T, name string) abi.Method {
	t.Helper()
	for _, parsed := range []abi.ABI{TipJarABI, MembershipNFTABI, GatedContentRegistryABI, FanRewardsABI} {
		if m, ok := parsed.Methods[name]; ok {
			return m
		}
	}
	t.Fatalf("unknown method %s", name)
	return abi.Method{}
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	var sel [4]byte
	copy(sel[:], msg.Data[:4])
	return f.results[sel], nil
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func (f *fakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filterCalls++

	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	var out []types.Log
	for _, l := range f.logs {
		if l.Address != q.Addresses[0] || l.BlockNumber < from || l.BlockNumber > to {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeBackend) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return []byte{0x60}, nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (f *fakeBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &types.Header{Number: new(big.Int).SetUint64(f.head)}, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonce++
	f.sent = append(f.sent, tx)
	f.pool[tx.Hash()] = tx
	if f.onSend != nil {
		if r := f.onSend(tx); r != nil {
			r.TxHash = tx.Hash()
			f.receipts[tx.Hash()] = r
			delete(f.pool, tx.Hash())
		}
	}
	return nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rpcErr != nil {
		return nil, f.rpcErr
	}
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx, ok := f.pool[hash]; ok {
		return tx, true, nil
	}
	return nil, false, ethereum.NotFound
}

func (f *fakeBackend) mine(hash common.Hash, status uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pool, hash)
	f.receipts[hash] = &types.Receipt{TxHash: hash, Status: status, BlockNumber: big.NewInt(int64(f.head) + 1)}
}

func (f *fakeBackend) drop(hash common.Hash) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pool, hash)
}

func (f *fakeBackend) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeBackend) addLog(l types.Log) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, l)
	if l.BlockNumber > f.head {
		f.head = l.BlockNumber
	}
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filterCalls
}

func newTestGateway(t *testing.T, backend Backend) *Gateway {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	g, err := newGateway(backend, key, config.ChainConfig{
		ChainID:                     84532,
		PollInterval:                "10ms",
		TipJarAddress:               tipJarAddr.Hex(),
		MembershipNFTAddress:        nftAddr.Hex(),
		GatedContentRegistryAddress: registryAdr.Hex(),
		FanRewardsAddress:           rewardsAddr.Hex(),
	}, zap.NewNop())
	require.NoError(t, err)
	return g
}

func TestNewGatewayRejectsBadAddress(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	_, err = newGateway(newFakeBackend(), key, config.ChainConfig{
		TipJarAddress:               "not-an-address",
		MembershipNFTAddress:        nftAddr.Hex(),
		GatedContentRegistryAddress: registryAdr.Hex(),
		FanRewardsAddress:           rewardsAddr.Hex(),
	}, zap.NewNop())
	assert.ErrorContains(t, err, "TIPJAR_CONTRACT_ADDRESS")
}

func TestNewGatewayRequiresKey(t *testing.T) {
	_, err := NewGateway(context.Background(), config.ChainConfig{}, zap.NewNop())
	assert.ErrorIs(t, err, ErrNoSigningKey)
}

func TestGetTipJarInfo(t *testing.T) {
	backend := newFakeBackend()
	creator := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	backend.setResult(t, "creator", creator)
	backend.setResult(t, "referralFeeBps", big.NewInt(500))

	info, err := newTestGateway(t, backend).GetTipJarInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, creator.Hex(), info.Creator)
	assert.Equal(t, int64(500), info.ReferralFeeBps)
}

func TestGetMembershipTierInfo(t *testing.T) {
	backend := newFakeBackend()
	backend.setResult(t, "getTierInfo", big.NewInt(5_000_000), big.NewInt(2592000), true)

	info, err := newTestGateway(t, backend).GetMembershipTierInfo(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "5", info.Price.String())
	assert.Equal(t, int64(2592000), info.MaxDuration)
	assert.True(t, info.IsActive)
}

func TestGetContentInfo(t *testing.T) {
	backend := newFakeBackend()
	backend.setResult(t, "getContentInfo", []*big.Int{big.NewInt(1), big.NewInt(3)}, big.NewInt(2_500_000), true)

	info, err := newTestGateway(t, backend).GetContentInfo(context.Background(), fanAddr.Hex(), "content_1")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, info.RequiredTiers)
	assert.Equal(t, "2.5", info.PriceInUSDC.String())
	assert.True(t, info.IsActive)
}

func TestCheckContentAccess(t *testing.T) {
	backend := newFakeBackend()
	backend.setResult(t, "hasAccess", true)

	ok, err := newTestGateway(t, backend).CheckContentAccess(context.Background(), fanAddr.Hex(), tipJarAddr.Hex(), "content_1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSubmitAwardPointsRejectsNonPositive(t *testing.T) {
	backend := newFakeBackend()
	_, err := newTestGateway(t, backend).SubmitAwardPoints(context.Background(), fanAddr.Hex(), 0, "Tip reward",
		func(string) error { return nil })
	assert.ErrorContains(t, err, "points must be positive")
	assert.Zero(t, backend.sentCount())
}

func TestSubmitAwardPointsRecordsBeforeBroadcast(t *testing.T) {
	backend := newFakeBackend()
	g := newTestGateway(t, backend)

	var recorded string
	hash, err := g.SubmitAwardPoints(context.Background(), fanAddr.Hex(), 14, "Tip reward", func(h string) error {
		recorded = h
		assert.Zero(t, backend.sentCount(), "hash must be stored before the transaction leaves")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, recorded, hash)
	require.Equal(t, 1, backend.sentCount())
	assert.Equal(t, hash, backend.sent[0].Hash().Hex())

	state, err := g.TxStatus(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, TxPending, state)
}

func TestSubmitAwardPointsNotSentWhenRecordFails(t *testing.T) {
	backend := newFakeBackend()
	_, err := newTestGateway(t, backend).SubmitAwardPoints(context.Background(), fanAddr.Hex(), 14, "Tip reward",
		func(string) error { return errors.New("db down") })
	assert.ErrorContains(t, err, "db down")
	assert.Zero(t, backend.sentCount())
}

func TestTxStatus(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	g := newTestGateway(t, backend)

	hash, err := g.SubmitAwardPoints(ctx, fanAddr.Hex(), 10, "Tip reward", func(string) error { return nil })
	require.NoError(t, err)
	txHash := common.HexToHash(hash)

	t.Run("pooled", func(t *testing.T) {
		state, err := g.TxStatus(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, TxPending, state)
	})

	t.Run("never seen", func(t *testing.T) {
		state, err := g.TxStatus(ctx, common.HexToHash("0xdead").Hex())
		require.NoError(t, err)
		assert.Equal(t, TxUnknown, state)
	})

	t.Run("mined", func(t *testing.T) {
		backend.mine(txHash, types.ReceiptStatusSuccessful)
		state, err := g.TxStatus(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, TxSucceeded, state)
	})

	t.Run("reverted", func(t *testing.T) {
		backend.mine(txHash, types.ReceiptStatusFailed)
		state, err := g.TxStatus(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, TxReverted, state)
	})

	t.Run("rpc failure is not unknown", func(t *testing.T) {
		backend.mu.Lock()
		backend.rpcErr = errors.New("connection refused")
		backend.mu.Unlock()
		_, err := g.TxStatus(ctx, hash)
		assert.ErrorContains(t, err, "connection refused")
	})
}

func TestWaitTx(t *testing.T) {
	t.Run("returns once mined", func(t *testing.T) {
		backend := newFakeBackend()
		g := newTestGateway(t, backend)
		hash, err := g.SubmitAwardPoints(context.Background(), fanAddr.Hex(), 10, "Tip reward", func(string) error { return nil })
		require.NoError(t, err)

		go func() {
			time.Sleep(30 * time.Millisecond)
			backend.mine(common.HexToHash(hash), types.ReceiptStatusSuccessful)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		state, err := g.WaitTx(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, TxSucceeded, state)
	})

	t.Run("reports a dropped transaction", func(t *testing.T) {
		backend := newFakeBackend()
		g := newTestGateway(t, backend)
		hash, err := g.SubmitAwardPoints(context.Background(), fanAddr.Hex(), 10, "Tip reward", func(string) error { return nil })
		require.NoError(t, err)
		backend.drop(common.HexToHash(hash))

		state, err := g.WaitTx(context.Background(), hash)
		require.NoError(t, err)
		assert.Equal(t, TxUnknown, state)
	})

	t.Run("gives up with the context", func(t *testing.T) {
		backend := newFakeBackend()
		g := newTestGateway(t, backend)
		hash, err := g.SubmitAwardPoints(context.Background(), fanAddr.Hex(), 10, "Tip reward", func(string) error { return nil })
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		state, err := g.WaitTx(ctx, hash)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, TxPending, state)
	})
}

func rewardCreatedLog(t *testing.T, id int64) *types.Log {
	t.Helper()
	ev := FanRewardsABI.Events["RewardCreated"]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(500), big.NewInt(100))
	require.NoError(t, err)
	return &types.Log{
		Address: rewardsAddr,
		Topics:  []common.Hash{ev.ID, common.BigToHash(big.NewInt(id))},
		Data:    data,
	}
}

func TestCreateRewardUsesContractID(t *testing.T) {
	backend := newFakeBackend()
	backend.onSend = func(*types.Transaction) *types.Receipt {
		return &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			BlockNumber: big.NewInt(1),
			Logs:        []*types.Log{rewardCreatedLog(t, 42)},
		}
	}

	created, err := newTestGateway(t, backend).CreateReward(context.Background(), 500, "Signed poster", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(42), created.RewardID)
	assert.Equal(t, backend.sent[0].Hash().Hex(), created.TxHash)
}

func TestCreateRewardWithoutEvent(t *testing.T) {
	backend := newFakeBackend()
	backend.onSend = func(*types.Transaction) *types.Receipt {
		foreign := rewardCreatedLog(t, 42)
		foreign.Address = tipJarAddr
		return &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			BlockNumber: big.NewInt(1),
			Logs:        []*types.Log{foreign},
		}
	}

	_, err := newTestGateway(t, backend).CreateReward(context.Background(), 500, "Signed poster", 100)
	assert.ErrorIs(t, err, ErrNoRewardCreated)
}

func tipLog(t *testing.T, block uint64, index uint, token common.Address, amount *big.Int) types.Log {
	t.Helper()
	return referredTipLog(t, block, index, token, amount, common.Address{}, big.NewInt(0))
}

// referredTipLog builds a TipReceived log. tipper and referrer are indexed, so
// they travel in the topics rather than the data.
func referredTipLog(t *testing.T, block uint64, index uint, token common.Address, amount *big.Int, referrer common.Address, referral *big.Int) types.Log {
	t.Helper()
	ev := TipJarABI.Events["TipReceived"]
	data, err := ev.Inputs.NonIndexed().Pack(amount, token, "gm", referral)
	require.NoError(t, err)
	return types.Log{
		Address:     tipJarAddr,
		Topics:      []common.Hash{ev.ID, common.BytesToHash(fanAddr.Bytes()), common.BytesToHash(referrer.Bytes())},
		Data:        data,
		BlockNumber: block,
		TxHash:      common.BigToHash(big.NewInt(int64(block*100) + int64(index))),
		Index:       index,
	}
}

func TestDecodeTip(t *testing.T) {
	g := newTestGateway(t, newFakeBackend())

	t.Run("native tip uses 18 decimals", func(t *testing.T) {
		amount, _ := new(big.Int).SetString("1400000000000000000", 10)
		ev, err := g.decodeTip(tipLog(t, 10, 0, common.Address{}, amount))
		require.NoError(t, err)
		assert.Equal(t, "ETH", ev.Token)
		assert.True(t, ev.Amount.Equal(decimal.RequireFromString("1.4")))
		assert.Equal(t, fanAddr.Hex(), ev.Tipper)
		assert.Equal(t, "gm", ev.Message)
		assert.Equal(t, uint64(10), ev.BlockNumber)
	})

	t.Run("token tip uses 6 decimals", func(t *testing.T) {
		ev, err := g.decodeTip(tipLog(t, 11, 2, usdcAddr, big.NewInt(2_500_000)))
		require.NoError(t, err)
		assert.Equal(t, "0x036cbd53842c5426634e7929541ec2318f3dcf7e", ev.Token)
		assert.True(t, ev.Amount.Equal(decimal.RequireFromString("2.5")))
		assert.Equal(t, uint(2), ev.LogIndex)
	})

	t.Run("referrer comes from the topics", func(t *testing.T) {
		referrer := common.HexToAddress("0x00000000000000000000000000000000000000bb")
		ev, err := g.decodeTip(referredTipLog(t, 12, 0, usdcAddr, big.NewInt(1_400_000), referrer, big.NewInt(70_000)))
		require.NoError(t, err)
		assert.True(t, ev.Amount.Equal(decimal.RequireFromString("1.4")))
		assert.Equal(t, referrer.Hex(), ev.Referrer)
		assert.True(t, ev.ReferralAmount.Equal(decimal.RequireFromString("0.07")))
		assert.Equal(t, "gm", ev.Message)
	})
}

func TestDecodeMembership(t *testing.T) {
	g := newTestGateway(t, newFakeBackend())
	ev := MembershipNFTABI.Events["MembershipMinted"]
	data, err := ev.Inputs.NonIndexed().Pack(big.NewInt(2592000), big.NewInt(1735689600))
	require.NoError(t, err)

	got, err := g.decodeMembership(types.Log{
		Address: nftAddr,
		Topics:  []common.Hash{ev.ID, common.BytesToHash(fanAddr.Bytes()), common.BigToHash(big.NewInt(2))},
		Data:    data,
	})
	require.NoError(t, err)
	assert.Equal(t, fanAddr.Hex(), got.Member)
	assert.Equal(t, int64(2), got.TierID)
	assert.Equal(t, int64(2592000), got.Duration)
	assert.Equal(t, int64(1735689600), got.ExpiresAt)
}

func TestDecodeReward(t *testing.T) {
	g := newTestGateway(t, newFakeBackend())

	awarded := FanRewardsABI.Events[RewardEventPointsAwarded]
	data, err := awarded.Inputs.NonIndexed().Pack(big.NewInt(14), "Tip reward")
	require.NoError(t, err)
	ev, err := g.decodeReward(types.Log{
		Address: rewardsAddr,
		Topics:  []common.Hash{awarded.ID, common.BytesToHash(fanAddr.Bytes())},
		Data:    data,
	})
	require.NoError(t, err)
	assert.Equal(t, RewardEventPointsAwarded, ev.Type)
	assert.Equal(t, int64(14), ev.Points)
	assert.Equal(t, "Tip reward", ev.Reason)

	redeemed := FanRewardsABI.Events[RewardEventRewardRedeemed]
	data, err = redeemed.Inputs.NonIndexed().Pack(big.NewInt(100))
	require.NoError(t, err)
	ev, err = g.decodeReward(types.Log{
		Address: rewardsAddr,
		Topics:  []common.Hash{redeemed.ID, common.BytesToHash(fanAddr.Bytes()), common.BigToHash(big.NewInt(7))},
		Data:    data,
	})
	require.NoError(t, err)
	assert.Equal(t, RewardEventRewardRedeemed, ev.Type)
	assert.Equal(t, int64(7), ev.RewardID)
	assert.Equal(t, int64(100), ev.PointsCost)

	_, err = g.decodeReward(types.Log{Topics: []common.Hash{common.HexToHash("0x01")}})
	assert.ErrorContains(t, err, "unknown reward event topic")
}

func TestListenForTipsDeliversAndUnsubscribes(t *testing.T) {
	backend := newFakeBackend()
	backend.addLog(tipLog(t, 5, 0, common.Address{}, big.NewInt(1e18)))
	backend.addLog(tipLog(t, 6, 0, usdcAddr, big.NewInt(1_000_000)))
	removed := tipLog(t, 6, 1, usdcAddr, big.NewInt(9_000_000))
	removed.Removed = true
	backend.addLog(removed)

	g := newTestGateway(t, backend)

	var mu sync.Mutex
	var got []TipEvent
	from := uint64(5)
	sub, err := g.ListenForTips(context.Background(), WatchOptions{FromBlock: &from}, func(ev TipEvent) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, time.Second, 5*time.Millisecond)

	sub.Unsubscribe()
	select {
	case _, ok := <-sub.Err():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription did not close")
	}

	calls := backend.calls()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, backend.calls(), "poller kept running after Unsubscribe")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "ETH", got[0].Token)
	assert.True(t, got[1].Amount.Equal(decimal.NewFromInt(1)))
}

func TestListenFromHeadSkipsHistory(t *testing.T) {
	backend := newFakeBackend()
	backend.addLog(tipLog(t, 5, 0, common.Address{}, big.NewInt(1e18)))
	g := newTestGateway(t, backend)

	var mu sync.Mutex
	count := 0
	sub, err := g.ListenForTips(context.Background(), WatchOptions{}, func(TipEvent) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	backend.addLog(tipLog(t, 7, 0, common.Address{}, big.NewInt(2e18)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}
