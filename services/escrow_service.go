package services

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	appConfig "github.com/agriconnect/agriconnect-api/config"
)

// escrowABIJSON is the application-facing interface of the AgriEscrow
// contract: a payable deposit entry point, a delivery confirmation entry
// point, a public order getter and the OrderPlaced event.
const escrowABIJSON = `[
	{"type":"function","name":"placeOrder","stateMutability":"payable","inputs":[{"name":"seller","type":"address"}],"outputs":[]},
	{"type":"function","name":"confirmDelivery","stateMutability":"nonpayable","inputs":[{"name":"orderId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"orders","stateMutability":"view","inputs":[{"name":"orderId","type":"uint256"}],"outputs":[{"name":"buyer","type":"address"},{"name":"seller","type":"address"},{"name":"amount","type":"uint256"},{"name":"released","type":"bool"}]},
	{"type":"event","name":"OrderPlaced","inputs":[{"name":"orderId","type":"uint256","indexed":false},{"name":"buyer","type":"address","indexed":false},{"name":"seller","type":"address","indexed":false},{"name":"amount","type":"uint256","indexed":false}],"anonymous":false}
]`

// orderPlacedEvent is the event name carrying the on-chain order identifier
const orderPlacedEvent = "OrderPlaced"

// DepositResult is the outcome of a mined escrow deposit
type DepositResult struct {
	TxHash         string
	OnChainOrderID string // uint256 order identifier, decimal string
	AmountWei      *big.Int
}

// EscrowInterface defines the ledger operations the application depends on.
// Implementations must never retry a rejected transaction on their own:
// value transfer is irreversible and a blind retry risks a double charge.
type EscrowInterface interface {
	// Deposit submits a value transfer to the escrow contract in favour of
	// the given seller address and blocks until the transaction is mined.
	Deposit(ctx context.Context, sellerAddress string, amountWei *big.Int) (*DepositResult, error)

	// ConfirmDelivery releases the escrow entry identified by the on-chain
	// order ID and returns the confirmation transaction hash.
	ConfirmDelivery(ctx context.Context, onChainOrderID string) (string, error)

	// OrderIDFromReceipt re-reads the receipt of a past deposit transaction
	// and extracts its on-chain order identifier.
	OrderIDFromReceipt(ctx context.Context, txHash string) (string, error)
}

// EscrowService talks to the AgriEscrow contract over JSON-RPC, signing
// transactions with the operator key.
type EscrowService struct {
	client     *ethclient.Client
	address    common.Address
	abi        abi.ABI
	privateKey *ecdsa.PrivateKey
	from       common.Address
	chainID    *big.Int
}

var escrowServiceInstance EscrowInterface

// InitEscrowService initializes the escrow service from configuration.
// Returns nil without error when no ledger RPC URL is configured; ledger
// operations will then fail with ErrLedgerUnavailable.
func InitEscrowService() (EscrowInterface, error) {
	cfg := appConfig.GetConfig()

	if cfg.LedgerRPCURL == "" {
		log.Println("LEDGER_RPC_URL not set, escrow operations disabled")
		return nil, nil
	}

	client, err := ethclient.Dial(cfg.LedgerRPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial ledger node: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.EscrowPrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid escrow operator key: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(escrowABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse escrow ABI: %w", err)
	}

	escrowServiceInstance = &EscrowService{
		client:     client,
		address:    common.HexToAddress(cfg.EscrowAddress),
		abi:        parsedABI,
		privateKey: key,
		from:       crypto.PubkeyToAddress(key.PublicKey),
		chainID:    big.NewInt(cfg.EscrowChainID),
	}

	return escrowServiceInstance, nil
}

// GetEscrowService returns the initialized escrow service instance
func GetEscrowService() EscrowInterface {
	return escrowServiceInstance
}

// SetEscrowService sets the escrow service instance (primarily for testing)
func SetEscrowService(service EscrowInterface) {
	escrowServiceInstance = service
}

// Deposit submits placeOrder(seller) with the given value and waits for it
// to be mined, then extracts the on-chain order ID from the receipt logs.
func (s *EscrowService) Deposit(ctx context.Context, sellerAddress string, amountWei *big.Int) (*DepositResult, error) {
	data, err := s.abi.Pack("placeOrder", common.HexToAddress(sellerAddress))
	if err != nil {
		return nil, fmt.Errorf("failed to encode placeOrder call: %w", err)
	}

	tx, err := s.sendTransaction(ctx, data, amountWei)
	if err != nil {
		return nil, err
	}

	receipt, err := bind.WaitMined(ctx, s.client, tx)
	if err != nil {
		return nil, fmt.Errorf("%w: waiting for deposit %s: %v", ErrLedgerUnavailable, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: deposit %s reverted", ErrTransactionRejected, tx.Hash().Hex())
	}

	orderID, err := s.orderIDFromLogs(receipt.Logs)
	if err != nil {
		// Funds moved but the deposit cannot be tied to an escrow entry.
		// Surface the hash so the caller can reconcile manually.
		return nil, fmt.Errorf("%w: deposit %s mined without OrderPlaced log", ErrEventNotFound, tx.Hash().Hex())
	}

	return &DepositResult{
		TxHash:         tx.Hash().Hex(),
		OnChainOrderID: orderID,
		AmountWei:      new(big.Int).Set(amountWei),
	}, nil
}

// ConfirmDelivery releases the escrow entry for the given on-chain order ID
func (s *EscrowService) ConfirmDelivery(ctx context.Context, onChainOrderID string) (string, error) {
	orderID, ok := new(big.Int).SetString(onChainOrderID, 10)
	if !ok {
		return "", fmt.Errorf("%w: malformed on-chain order id %q", ErrValidation, onChainOrderID)
	}

	// Preflight: ask the contract whether the entry exists before paying
	// gas on a transaction that would revert.
	if err := s.checkOrderExists(ctx, orderID); err != nil {
		return "", err
	}

	data, err := s.abi.Pack("confirmDelivery", orderID)
	if err != nil {
		return "", fmt.Errorf("failed to encode confirmDelivery call: %w", err)
	}

	tx, err := s.sendTransaction(ctx, data, big.NewInt(0))
	if err != nil {
		return "", err
	}

	receipt, err := bind.WaitMined(ctx, s.client, tx)
	if err != nil {
		return "", fmt.Errorf("%w: waiting for confirmation %s: %v", ErrLedgerUnavailable, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("%w: confirmation %s reverted", ErrTransactionRejected, tx.Hash().Hex())
	}

	return tx.Hash().Hex(), nil
}

// OrderIDFromReceipt extracts the on-chain order ID from the receipt of a
// past deposit transaction. Used to heal rows that recorded a hash but
// missed the identifier.
func (s *EscrowService) OrderIDFromReceipt(ctx context.Context, txHash string) (string, error) {
	receipt, err := s.client.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		return "", fmt.Errorf("%w: fetching receipt %s: %v", ErrLedgerUnavailable, txHash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("%w: transaction %s reverted", ErrTransactionRejected, txHash)
	}

	orderID, err := s.orderIDFromLogs(receipt.Logs)
	if err != nil {
		return "", fmt.Errorf("%w: transaction %s", ErrEventNotFound, txHash)
	}
	return orderID, nil
}

// sendTransaction signs and broadcasts a contract call with the given
// calldata and value
func (s *EscrowService) sendTransaction(ctx context.Context, data []byte, value *big.Int) (*types.Transaction, error) {
	nonce, err := s.client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching nonce: %v", ErrLedgerUnavailable, err)
	}

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching gas price: %v", ErrLedgerUnavailable, err)
	}

	msg := ethereum.CallMsg{From: s.from, To: &s.address, Value: value, Data: data}
	gasLimit, err := s.client.EstimateGas(ctx, msg)
	if err != nil {
		// Estimation fails when the call would revert
		return nil, fmt.Errorf("%w: %v", ErrTransactionRejected, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &s.address,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransactionRejected, err)
	}

	return signedTx, nil
}

// checkOrderExists calls orders(orderId) and verifies the entry has a buyer
func (s *EscrowService) checkOrderExists(ctx context.Context, orderID *big.Int) error {
	data, err := s.abi.Pack("orders", orderID)
	if err != nil {
		return fmt.Errorf("failed to encode orders call: %w", err)
	}

	output, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &s.address, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("%w: reading escrow entry: %v", ErrLedgerUnavailable, err)
	}

	values, err := s.abi.Unpack("orders", output)
	if err != nil || len(values) == 0 {
		return fmt.Errorf("%w: undecodable escrow entry for id %s", ErrOrderNotFound, orderID)
	}

	buyer, ok := values[0].(common.Address)
	if !ok || buyer == (common.Address{}) {
		return fmt.Errorf("%w: id %s", ErrOrderNotFound, orderID)
	}
	return nil
}

// orderIDFromLogs scans receipt logs restricted to the escrow contract
// address for the first decodable OrderPlaced event and returns its order ID
func (s *EscrowService) orderIDFromLogs(logs []*types.Log) (string, error) {
	eventID := s.abi.Events[orderPlacedEvent].ID
	for _, vLog := range logs {
		if vLog.Address != s.address {
			continue
		}
		if len(vLog.Topics) == 0 || vLog.Topics[0] != eventID {
			continue
		}
		values, err := s.abi.Unpack(orderPlacedEvent, vLog.Data)
		if err != nil || len(values) == 0 {
			log.Printf("warning: undecodable OrderPlaced log in tx %s: %v", vLog.TxHash.Hex(), err)
			continue
		}
		orderID, ok := values[0].(*big.Int)
		if !ok {
			continue
		}
		return orderID.String(), nil
	}
	return "", ErrEventNotFound
}
