package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"stellar-swap/config"
	"stellar-swap/pkg/escrow"
)

// Escrow factory ABI. The factory deploys one escrow contract per swap leg
// and announces it through the EscrowCreated event; all later calls go to
// the escrow contract itself.
const escrowFactoryABI = `[
	{"inputs":[
		{"name":"recipient","type":"address"},
		{"name":"token","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"commitment","type":"bytes32"},
		{"name":"withdrawalStart","type":"uint256"},
		{"name":"publicWithdrawalStart","type":"uint256"},
		{"name":"cancellationStart","type":"uint256"},
		{"name":"publicCancellationStart","type":"uint256"},
		{"name":"partialFill","type":"bool"},
		{"name":"totalParts","type":"uint256"}],
	 "name":"createEscrow","outputs":[{"name":"","type":"address"}],"stateMutability":"payable","type":"function"},
	{"anonymous":false,"inputs":[
		{"indexed":true,"name":"escrow","type":"address"},
		{"indexed":true,"name":"commitment","type":"bytes32"}],
	 "name":"EscrowCreated","type":"event"}
]`

const escrowContractABI = `[
	{"inputs":[{"name":"secret","type":"bytes32"}],"name":"withdraw","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[
		{"name":"secret","type":"bytes32"},
		{"name":"proof","type":"bytes32[]"},
		{"name":"leafIndex","type":"uint256"}],
	 "name":"withdrawWithProof","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[],"name":"cancel","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[],"name":"rescue","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[],"name":"details","outputs":[
		{"name":"recipient","type":"address"},
		{"name":"creator","type":"address"},
		{"name":"token","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"commitment","type":"bytes32"},
		{"name":"withdrawalStart","type":"uint256"},
		{"name":"publicWithdrawalStart","type":"uint256"},
		{"name":"cancellationStart","type":"uint256"},
		{"name":"publicCancellationStart","type":"uint256"},
		{"name":"state","type":"uint8"},
		{"name":"partialFill","type":"bool"},
		{"name":"totalParts","type":"uint256"},
		{"name":"consumedBitmap","type":"uint256"}],
	 "stateMutability":"view","type":"function"}
]`

const receiptPollInterval = 2 * time.Second

// EVMAdapter drives escrow contracts on EVM-compatible chains through a
// deployed factory contract.
type EVMAdapter struct {
	network    config.ChainConfig
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	from       common.Address
	factory    abi.ABI
	contract   abi.ABI
}

// NewEVMAdapter connects to the chain's RPC endpoint and prepares the signing
// key and contract ABIs.
func NewEVMAdapter(network config.ChainConfig) (*EVMAdapter, error) {
	if network.RPCUrl == "" {
		return nil, fmt.Errorf("RPC URL not configured")
	}
	if network.PrivateKey == "" {
		return nil, fmt.Errorf("private key not configured")
	}
	if !common.IsHexAddress(network.FactoryAddress) {
		return nil, fmt.Errorf("invalid factory address: %s", network.FactoryAddress)
	}

	client, err := ethclient.Dial(network.RPCUrl)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(network.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	factory, err := abi.JSON(strings.NewReader(escrowFactoryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse factory ABI: %w", err)
	}
	contract, err := abi.JSON(strings.NewReader(escrowContractABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse escrow ABI: %w", err)
	}

	return &EVMAdapter{
		network:    network,
		client:     client,
		privateKey: privateKey,
		from:       crypto.PubkeyToAddress(privateKey.PublicKey),
		factory:    factory,
		contract:   contract,
	}, nil
}

func (e *EVMAdapter) CreateEscrow(ctx context.Context, params EscrowParams) (string, error) {
	if !common.IsHexAddress(params.Recipient) {
		return "", fmt.Errorf("invalid recipient address: %s", params.Recipient)
	}

	token := common.Address{}
	if params.Token != "" {
		if !common.IsHexAddress(params.Token) {
			return "", fmt.Errorf("invalid token address: %s", params.Token)
		}
		token = common.HexToAddress(params.Token)
	}

	data, err := e.factory.Pack("createEscrow",
		common.HexToAddress(params.Recipient),
		token,
		params.Amount,
		params.Commitment,
		big.NewInt(params.Windows.WithdrawalStart),
		big.NewInt(params.Windows.PublicWithdrawalStart),
		big.NewInt(params.Windows.CancellationStart),
		big.NewInt(params.Windows.PublicCancellationStart),
		params.PartialFill,
		big.NewInt(int64(params.TotalParts)),
	)
	if err != nil {
		return "", fmt.Errorf("failed to pack createEscrow data: %w", err)
	}

	// The security deposit always rides as transaction value; native escrows
	// add the amount on top, token escrows fund through the token contract's
	// allowance.
	value := new(big.Int).Set(params.Deposit())
	if params.Token == "" {
		value.Add(value, params.Amount)
	}
	if value.Sign() > 0 {
		balance, err := e.client.BalanceAt(ctx, e.from, nil)
		if err != nil {
			return "", fmt.Errorf("%w: failed to get balance: %v", ErrNetworkFailure, err)
		}
		if balance.Cmp(value) < 0 {
			return "", fmt.Errorf("%w: have %s wei, need %s wei", ErrInsufficientFunds, balance, value)
		}
	}

	factoryAddr := common.HexToAddress(e.network.FactoryAddress)
	receipt, err := e.sendAndWait(ctx, factoryAddr, value, data)
	if err != nil {
		return "", err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("createEscrow transaction reverted: %s", receipt.TxHash.Hex())
	}

	created := e.factory.Events["EscrowCreated"].ID
	for _, log := range receipt.Logs {
		if len(log.Topics) == 3 && log.Topics[0] == created {
			return common.BytesToAddress(log.Topics[1].Bytes()).Hex(), nil
		}
	}
	return "", fmt.Errorf("EscrowCreated event not found in transaction %s", receipt.TxHash.Hex())
}

func (e *EVMAdapter) AwaitConfirmation(ctx context.Context, address string) error {
	// The creation receipt is already final on EVM chains; a successful read
	// confirms the escrow contract is live at the address.
	_, err := e.ReadEscrow(ctx, address)
	return err
}

func (e *EVMAdapter) Withdraw(ctx context.Context, address string, secret []byte) error {
	if len(secret) != common.HashLength {
		return fmt.Errorf("secret must be %d bytes, got %d", common.HashLength, len(secret))
	}

	data, err := e.contract.Pack("withdraw", common.BytesToHash(secret))
	if err != nil {
		return fmt.Errorf("failed to pack withdraw data: %w", err)
	}

	return e.submitEscrowCall(ctx, address, data, e.classifyWithdrawRevert)
}

func (e *EVMAdapter) WithdrawWithProof(ctx context.Context, address string, secret []byte, proof []common.Hash, leafIndex int) error {
	if len(secret) != common.HashLength {
		return fmt.Errorf("secret must be %d bytes, got %d", common.HashLength, len(secret))
	}

	proofWords := make([][32]byte, len(proof))
	for i, node := range proof {
		proofWords[i] = node
	}

	data, err := e.contract.Pack("withdrawWithProof", common.BytesToHash(secret), proofWords, big.NewInt(int64(leafIndex)))
	if err != nil {
		return fmt.Errorf("failed to pack withdrawWithProof data: %w", err)
	}

	return e.submitEscrowCall(ctx, address, data, func(ctx context.Context, address string) error {
		snapshot, readErr := e.ReadEscrow(ctx, address)
		if readErr == nil && !snapshot.State.Terminal() && snapshot.LeafConsumed(leafIndex) {
			return fmt.Errorf("%w: escrow %s leaf %d", escrow.ErrLeafAlreadyConsumed, address, leafIndex)
		}
		return e.classifyWithdrawRevert(ctx, address)
	})
}

func (e *EVMAdapter) Cancel(ctx context.Context, address string) error {
	data, err := e.contract.Pack("cancel")
	if err != nil {
		return fmt.Errorf("failed to pack cancel data: %w", err)
	}

	return e.submitEscrowCall(ctx, address, data, func(ctx context.Context, address string) error {
		snapshot, readErr := e.ReadEscrow(ctx, address)
		if readErr == nil && snapshot.State.Terminal() {
			return fmt.Errorf("%w: escrow %s is %s", escrow.ErrAlreadyFinalized, address, snapshot.State)
		}
		return fmt.Errorf("%w: cancel reverted for escrow %s", escrow.ErrWindowViolation, address)
	})
}

func (e *EVMAdapter) Rescue(ctx context.Context, address string) error {
	data, err := e.contract.Pack("rescue")
	if err != nil {
		return fmt.Errorf("failed to pack rescue data: %w", err)
	}

	return e.submitEscrowCall(ctx, address, data, func(ctx context.Context, address string) error {
		snapshot, readErr := e.ReadEscrow(ctx, address)
		if readErr == nil && snapshot.State.Terminal() {
			return fmt.Errorf("%w: escrow %s is %s", escrow.ErrAlreadyFinalized, address, snapshot.State)
		}
		return fmt.Errorf("%w: rescue reverted for escrow %s", escrow.ErrWindowViolation, address)
	})
}

func (e *EVMAdapter) ReadEscrow(ctx context.Context, address string) (*escrow.Escrow, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid escrow address: %s", address)
	}

	data, err := e.contract.Pack("details")
	if err != nil {
		return nil, fmt.Errorf("failed to pack details data: %w", err)
	}

	contractAddr := common.HexToAddress(address)
	result, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &contractAddr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to call details: %v", ErrNetworkFailure, err)
	}

	fields, err := e.contract.Unpack("details", result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack details: %w", err)
	}
	if len(fields) != 13 {
		return nil, fmt.Errorf("unexpected details arity: %d", len(fields))
	}

	state := escrow.StateCreated
	switch fields[9].(uint8) {
	case 1:
		state = escrow.StateWithdrawn
	case 2:
		state = escrow.StateCancelled
	}

	totalParts := int(fields[11].(*big.Int).Int64())
	bitmap := fields[12].(*big.Int)
	consumed := make([]int, 0, totalParts)
	for i := 0; i < totalParts; i++ {
		if bitmap.Bit(i) == 1 {
			consumed = append(consumed, i)
		}
	}

	return &escrow.Escrow{
		Address:    address,
		Recipient:  fields[0].(common.Address).Hex(),
		Creator:    fields[1].(common.Address).Hex(),
		Token:      fields[2].(common.Address).Hex(),
		Amount:     fields[3].(*big.Int),
		Commitment: common.Hash(fields[4].([32]byte)),
		Windows: escrow.Windows{
			WithdrawalStart:         fields[5].(*big.Int).Int64(),
			PublicWithdrawalStart:   fields[6].(*big.Int).Int64(),
			CancellationStart:       fields[7].(*big.Int).Int64(),
			PublicCancellationStart: fields[8].(*big.Int).Int64(),
		},
		State:          state,
		PartialFill:    fields[10].(bool),
		TotalParts:     totalParts,
		ConsumedLeaves: consumed,
	}, nil
}

// submitEscrowCall sends a state-changing call to an escrow contract and, on
// revert, asks classify to translate the failure into a sentinel error.
func (e *EVMAdapter) submitEscrowCall(ctx context.Context, address string, data []byte, classify func(context.Context, string) error) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid escrow address: %s", address)
	}

	receipt, err := e.sendAndWait(ctx, common.HexToAddress(address), big.NewInt(0), data)
	if err != nil {
		return err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return classify(ctx, address)
	}
	return nil
}

// classifyWithdrawRevert turns a reverted withdrawal into the error the
// contract state implies. Reverted transactions carry no reason string over
// plain RPC, so the escrow snapshot is the source of truth.
func (e *EVMAdapter) classifyWithdrawRevert(ctx context.Context, address string) error {
	snapshot, err := e.ReadEscrow(ctx, address)
	if err != nil {
		return fmt.Errorf("withdraw reverted and escrow %s unreadable: %w", address, err)
	}
	if snapshot.State.Terminal() {
		return fmt.Errorf("%w: escrow %s is %s", escrow.ErrAlreadyFinalized, address, snapshot.State)
	}

	now := time.Now().Unix()
	switch snapshot.Windows.PhaseAt(now) {
	case escrow.PhasePrivateWithdrawal, escrow.PhasePublicWithdrawal:
		return fmt.Errorf("%w: escrow %s", escrow.ErrCommitmentMismatch, address)
	default:
		return fmt.Errorf("%w: withdrawal window is [%d,%d), now %d", escrow.ErrWindowViolation,
			snapshot.Windows.WithdrawalStart, snapshot.Windows.CancellationStart, now)
	}
}

// sendAndWait signs and submits a transaction, then polls for its receipt
// until the context expires.
func (e *EVMAdapter) sendAndWait(ctx context.Context, to common.Address, value *big.Int, data []byte) (*types.Receipt, error) {
	nonce, err := e.client.PendingNonceAt(ctx, e.from)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get nonce: %v", ErrNetworkFailure, err)
	}

	gasPrice, err := e.getGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	gasLimit := uint64(300000)
	if e.network.GasLimit != nil {
		gasLimit = *e.network.GasLimit
	} else {
		msg := ethereum.CallMsg{From: e.from, To: &to, Value: value, Data: data}
		if estimated, err := e.client.EstimateGas(ctx, msg); err == nil {
			gasLimit = estimated * 120 / 100
		}
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)

	chainID := big.NewInt(e.network.ChainID)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(chainID), e.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := e.client.SendTransaction(ctx, signedTx); err != nil {
		if strings.Contains(err.Error(), "insufficient funds") {
			return nil, fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
		}
		return nil, fmt.Errorf("%w: failed to send transaction: %v", ErrNetworkFailure, err)
	}

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()
	for {
		receipt, err := e.client.TransactionReceipt(ctx, signedTx.Hash())
		if err == nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: waiting for transaction %s: %v", ErrNetworkFailure, signedTx.Hash().Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (e *EVMAdapter) getGasPrice(ctx context.Context) (*big.Int, error) {
	if e.network.GasPrice != nil {
		return big.NewInt(*e.network.GasPrice), nil
	}

	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get gas price: %v", ErrNetworkFailure, err)
	}
	return gasPrice, nil
}

// Close closes the client connection.
func (e *EVMAdapter) Close() {
	if e.client != nil {
		e.client.Close()
	}
}
