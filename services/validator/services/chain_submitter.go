package services

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/tickernet-ai/tickernet/pkg/protocol"
)

// weightScale converts [0,1] weights to the uint16 range the contract
// expects.
const weightScale = 65535

// setWeightsABI covers the single contract method the validator calls.
const setWeightsABI = `[
  {
    "inputs": [
      {"internalType": "uint64", "name": "subnetId", "type": "uint64"},
      {"internalType": "uint64", "name": "round", "type": "uint64"},
      {"internalType": "bytes32[]", "name": "minerIds", "type": "bytes32[]"},
      {"internalType": "uint16[]", "name": "weights", "type": "uint16[]"}
    ],
    "name": "setWeights",
    "outputs": [],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

// WeightSubmitter publishes a weight vector after each round.
type WeightSubmitter interface {
	Submit(ctx context.Context, round uint64, weights []protocol.MinerWeight) error
}

// NoopSubmitter is used when chain submission is disabled; the vector is only
// logged.
type NoopSubmitter struct {
	Log *logrus.Entry
}

func (n *NoopSubmitter) Submit(ctx context.Context, round uint64, weights []protocol.MinerWeight) error {
	n.Log.WithFields(logrus.Fields{"round": round, "miners": len(weights)}).
		Info("chain submission disabled, weights not published")
	return nil
}

// ChainSubmitter writes weight vectors to the subnet contract.
type ChainSubmitter struct {
	client          *ethclient.Client
	contractAddress common.Address
	contractABI     abi.ABI
	signer          *bind.TransactOpts
	subnetID        uint64
	log             *logrus.Entry
}

// ChainConfig configures the on-chain weight submission.
type ChainConfig struct {
	RPCURL          string
	ContractAddress string
	PrivateKeyHex   string
	SubnetID        uint64
}

// NewChainSubmitter connects to the RPC node and prepares the signer.
func NewChainSubmitter(cfg ChainConfig, log *logrus.Entry) (*ChainSubmitter, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum client: %v", err)
	}

	contractABI, err := abi.JSON(strings.NewReader(setWeightsABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABI: %v", err)
	}

	privateKey, err := ethcrypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %v", err)
	}

	chainID, err := client.ChainID(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %v", err)
	}
	signer, err := bind.NewKeyedTransactorWithChainID(privateKey, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %v", err)
	}

	return &ChainSubmitter{
		client:          client,
		contractAddress: common.HexToAddress(cfg.ContractAddress),
		contractABI:     contractABI,
		signer:          signer,
		subnetID:        cfg.SubnetID,
		log:             log,
	}, nil
}

// Submit publishes one weight vector and waits for the transaction to mine.
func (s *ChainSubmitter) Submit(ctx context.Context, round uint64, weights []protocol.MinerWeight) error {
	if len(weights) == 0 {
		return nil
	}

	minerIDs := make([][32]byte, len(weights))
	scaled := make([]uint16, len(weights))
	for i, w := range weights {
		minerIDs[i] = ethcrypto.Keccak256Hash([]byte(w.MinerID))
		scaled[i] = uint16(w.Weight * weightScale)
	}

	nonce, err := s.client.PendingNonceAt(ctx, s.signer.From)
	if err != nil {
		return fmt.Errorf("failed to get nonce: %v", err)
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to get gas price: %v", err)
	}

	opts := &bind.TransactOpts{
		From:     s.signer.From,
		Nonce:    big.NewInt(int64(nonce)),
		Value:    big.NewInt(0),
		GasLimit: 300000,
		GasPrice: gasPrice,
		Signer:   s.signer.Signer,
		Context:  ctx,
	}

	contract := bind.NewBoundContract(s.contractAddress, s.contractABI, s.client, s.client, s.client)
	tx, err := contract.Transact(opts, "setWeights", s.subnetID, round, minerIDs, scaled)
	if err != nil {
		return fmt.Errorf("failed to submit weights: %v", err)
	}

	receipt, err := bind.WaitMined(ctx, s.client, tx)
	if err != nil {
		return fmt.Errorf("failed to wait for confirmation: %v", err)
	}
	if receipt.Status != 1 {
		return fmt.Errorf("weight submission reverted, tx %s", tx.Hash().Hex())
	}

	s.log.WithFields(logrus.Fields{
		"round":  round,
		"miners": len(weights),
		"tx":     tx.Hash().Hex(),
	}).Info("submitted weight vector on chain")
	return nil
}
