package chain

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"stellar-swap/config"
	"stellar-swap/pkg/escrow"
)

// Escrow program instruction tags.
const (
	solanaIxCreate byte = iota
	solanaIxWithdraw
	solanaIxWithdrawWithProof
	solanaIxCancel
	solanaIxRescue
)

// Custom program error codes the escrow program returns.
const (
	solanaErrWindowViolation    = "0x1"
	solanaErrCommitmentMismatch = "0x2"
	solanaErrAlreadyFinalized   = "0x3"
	solanaErrLeafConsumed       = "0x4"
)

// Escrow account data layout, fixed offsets.
const solanaEscrowAccountSize = 32 + 32 + 32 + 8 + 32 + 8*4 + 1 + 1 + 4 + 8

// SolanaAdapter drives the escrow program on Solana. Each escrow lives in a
// program-derived account keyed by its commitment and creator.
type SolanaAdapter struct {
	network    config.ChainConfig
	client     *rpc.Client
	program    solana.PublicKey
	privateKey solana.PrivateKey
	publicKey  solana.PublicKey
}

// NewSolanaAdapter creates a Solana adapter for the configured escrow
// program.
func NewSolanaAdapter(network config.ChainConfig) (*SolanaAdapter, error) {
	if network.RPCUrl == "" {
		return nil, fmt.Errorf("RPC URL not configured")
	}
	if network.PrivateKey == "" {
		return nil, fmt.Errorf("private key not configured")
	}

	program, err := solana.PublicKeyFromBase58(network.FactoryAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid escrow program id: %w", err)
	}

	privateKey, err := solana.PrivateKeyFromBase58(network.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return &SolanaAdapter{
		network:    network,
		client:     rpc.New(network.RPCUrl),
		program:    program,
		privateKey: privateKey,
		publicKey:  privateKey.PublicKey(),
	}, nil
}

func (s *SolanaAdapter) CreateEscrow(ctx context.Context, params EscrowParams) (string, error) {
	recipient, err := solana.PublicKeyFromBase58(params.Recipient)
	if err != nil {
		return "", fmt.Errorf("invalid recipient address: %w", err)
	}

	token := solana.PublicKey{}
	if params.Token != "" {
		token, err = solana.PublicKeyFromBase58(params.Token)
		if err != nil {
			return "", fmt.Errorf("invalid token mint address: %w", err)
		}
	}

	if !params.Amount.IsUint64() {
		return "", fmt.Errorf("amount %s exceeds u64 range", params.Amount)
	}
	if !params.Deposit().IsUint64() {
		return "", fmt.Errorf("security deposit %s exceeds u64 range", params.Deposit())
	}
	lamports := params.Amount.Uint64()
	deposit := params.Deposit().Uint64()

	// Native escrows need the lamports plus deposit and fee headroom in the
	// signer account before the program can move them into the escrow PDA.
	if params.Token == "" {
		balance, err := s.client.GetBalance(ctx, s.publicKey, rpc.CommitmentFinalized)
		if err != nil {
			return "", fmt.Errorf("%w: failed to get balance: %v", ErrNetworkFailure, err)
		}
		needed := lamports + deposit + 5000
		if balance.Value < needed {
			return "", fmt.Errorf("%w: have %d lamports, need %d", ErrInsufficientFunds, balance.Value, needed)
		}
	}

	escrowAccount, err := s.deriveEscrowAccount(params.Commitment, s.publicKey)
	if err != nil {
		return "", err
	}

	data := make([]byte, 0, 1+32+32+8+8+32+8*4+1+4)
	data = append(data, solanaIxCreate)
	data = append(data, recipient.Bytes()...)
	data = append(data, token.Bytes()...)
	data = binary.LittleEndian.AppendUint64(data, lamports)
	data = binary.LittleEndian.AppendUint64(data, deposit)
	data = append(data, params.Commitment.Bytes()...)
	data = binary.LittleEndian.AppendUint64(data, uint64(params.Windows.WithdrawalStart))
	data = binary.LittleEndian.AppendUint64(data, uint64(params.Windows.PublicWithdrawalStart))
	data = binary.LittleEndian.AppendUint64(data, uint64(params.Windows.CancellationStart))
	data = binary.LittleEndian.AppendUint64(data, uint64(params.Windows.PublicCancellationStart))
	if params.PartialFill {
		data = append(data, 1)
	} else {
		data = append(data, 0)
	}
	data = binary.LittleEndian.AppendUint32(data, uint32(params.TotalParts))

	instruction := solana.NewInstruction(
		s.program,
		solana.AccountMetaSlice{
			solana.Meta(s.publicKey).WRITE().SIGNER(),
			solana.Meta(escrowAccount).WRITE(),
			solana.Meta(solana.SystemProgramID),
		},
		data,
	)

	if _, err := s.sendInstruction(ctx, instruction); err != nil {
		return "", err
	}

	return escrowAccount.String(), nil
}

func (s *SolanaAdapter) AwaitConfirmation(ctx context.Context, address string) error {
	account, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return fmt.Errorf("invalid escrow address: %w", err)
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		info, err := s.client.GetAccountInfo(ctx, account)
		if err == nil && info.Value != nil {
			return nil
		}
		if err != nil && !strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("%w: failed to get escrow account: %v", ErrNetworkFailure, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: waiting for escrow %s: %v", ErrNetworkFailure, address, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *SolanaAdapter) Withdraw(ctx context.Context, address string, secret []byte) error {
	data := make([]byte, 0, 1+len(secret))
	data = append(data, solanaIxWithdraw)
	data = append(data, secret...)

	return s.submitEscrowInstruction(ctx, address, data)
}

func (s *SolanaAdapter) WithdrawWithProof(ctx context.Context, address string, secret []byte, proof []common.Hash, leafIndex int) error {
	data := make([]byte, 0, 1+len(secret)+4+len(proof)*32+4)
	data = append(data, solanaIxWithdrawWithProof)
	data = append(data, secret...)
	data = binary.LittleEndian.AppendUint32(data, uint32(len(proof)))
	for _, node := range proof {
		data = append(data, node.Bytes()...)
	}
	data = binary.LittleEndian.AppendUint32(data, uint32(leafIndex))

	return s.submitEscrowInstruction(ctx, address, data)
}

func (s *SolanaAdapter) Cancel(ctx context.Context, address string) error {
	return s.submitEscrowInstruction(ctx, address, []byte{solanaIxCancel})
}

func (s *SolanaAdapter) Rescue(ctx context.Context, address string) error {
	return s.submitEscrowInstruction(ctx, address, []byte{solanaIxRescue})
}

func (s *SolanaAdapter) ReadEscrow(ctx context.Context, address string) (*escrow.Escrow, error) {
	account, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("invalid escrow address: %w", err)
	}

	info, err := s.client.GetAccountInfo(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get escrow account: %v", ErrNetworkFailure, err)
	}
	if info.Value == nil {
		return nil, fmt.Errorf("escrow %s not found", address)
	}

	data := info.Value.Data.GetBinary()
	if len(data) < solanaEscrowAccountSize {
		return nil, fmt.Errorf("invalid escrow account data: %d bytes", len(data))
	}

	offset := 0
	next := func(n int) []byte {
		chunk := data[offset : offset+n]
		offset += n
		return chunk
	}

	recipient := solana.PublicKeyFromBytes(next(32))
	creator := solana.PublicKeyFromBytes(next(32))
	token := solana.PublicKeyFromBytes(next(32))
	amount := binary.LittleEndian.Uint64(next(8))
	commitment := common.BytesToHash(next(32))
	windows := escrow.Windows{
		WithdrawalStart:         int64(binary.LittleEndian.Uint64(next(8))),
		PublicWithdrawalStart:   int64(binary.LittleEndian.Uint64(next(8))),
		CancellationStart:       int64(binary.LittleEndian.Uint64(next(8))),
		PublicCancellationStart: int64(binary.LittleEndian.Uint64(next(8))),
	}

	state := escrow.StateCreated
	switch next(1)[0] {
	case 1:
		state = escrow.StateWithdrawn
	case 2:
		state = escrow.StateCancelled
	}

	partialFill := next(1)[0] == 1
	totalParts := int(binary.LittleEndian.Uint32(next(4)))
	bitmap := binary.LittleEndian.Uint64(next(8))
	consumed := make([]int, 0, totalParts)
	for i := 0; i < totalParts && i < 64; i++ {
		if bitmap&(1<<uint(i)) != 0 {
			consumed = append(consumed, i)
		}
	}

	tokenStr := ""
	if !token.IsZero() {
		tokenStr = token.String()
	}

	return &escrow.Escrow{
		Address:        address,
		Recipient:      recipient.String(),
		Creator:        creator.String(),
		Token:          tokenStr,
		Amount:         new(big.Int).SetUint64(amount),
		Commitment:     commitment,
		Windows:        windows,
		State:          state,
		PartialFill:    partialFill,
		TotalParts:     totalParts,
		ConsumedLeaves: consumed,
	}, nil
}

// deriveEscrowAccount derives the program address holding the escrow state.
func (s *SolanaAdapter) deriveEscrowAccount(commitment common.Hash, creator solana.PublicKey) (solana.PublicKey, error) {
	seeds := [][]byte{[]byte("escrow"), commitment.Bytes(), creator.Bytes()}
	account, _, err := solana.FindProgramAddress(seeds, s.program)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive escrow account: %w", err)
	}
	return account, nil
}

func (s *SolanaAdapter) submitEscrowInstruction(ctx context.Context, address string, data []byte) error {
	account, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return fmt.Errorf("invalid escrow address: %w", err)
	}

	instruction := solana.NewInstruction(
		s.program,
		solana.AccountMetaSlice{
			solana.Meta(s.publicKey).WRITE().SIGNER(),
			solana.Meta(account).WRITE(),
		},
		data,
	)

	_, err = s.sendInstruction(ctx, instruction)
	return err
}

// sendInstruction signs and submits a single-instruction transaction. The
// program rejects invalid transitions in preflight, so its custom error
// codes surface here and are mapped to the shared sentinel errors.
func (s *SolanaAdapter) sendInstruction(ctx context.Context, instruction solana.Instruction) (solana.Signature, error) {
	recent, err := s.client.GetRecentBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: failed to get recent blockhash: %v", ErrNetworkFailure, err)
	}

	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction},
		recent.Value.Blockhash,
		solana.TransactionPayer(s.publicKey),
	)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to create transaction: %w", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.publicKey) {
			return &s.privateKey
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sig, err := s.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, s.mapProgramError(err)
	}

	return sig, nil
}

// mapProgramError classifies transaction failures by the program's custom
// error code embedded in the RPC error string.
func (s *SolanaAdapter) mapProgramError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "custom program error: "+solanaErrWindowViolation):
		return fmt.Errorf("%w: %v", escrow.ErrWindowViolation, err)
	case strings.Contains(msg, "custom program error: "+solanaErrCommitmentMismatch):
		return fmt.Errorf("%w: %v", escrow.ErrCommitmentMismatch, err)
	case strings.Contains(msg, "custom program error: "+solanaErrAlreadyFinalized):
		return fmt.Errorf("%w: %v", escrow.ErrAlreadyFinalized, err)
	case strings.Contains(msg, "custom program error: "+solanaErrLeafConsumed):
		return fmt.Errorf("%w: %v", escrow.ErrLeafAlreadyConsumed, err)
	case strings.Contains(msg, "insufficient funds"), strings.Contains(msg, "insufficient lamports"):
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	default:
		return fmt.Errorf("%w: failed to send transaction: %v", ErrNetworkFailure, err)
	}
}

// Close closes any open connections.
func (s *SolanaAdapter) Close() {
	// The Solana RPC client doesn't require explicit cleanup.
}
