package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/orderswap/params"
	"github.com/uhyunpark/orderswap/pkg/api"
	"github.com/uhyunpark/orderswap/pkg/app/core/fee"
	"github.com/uhyunpark/orderswap/pkg/app/core/order"
	"github.com/uhyunpark/orderswap/pkg/app/core/transaction"
	"github.com/uhyunpark/orderswap/pkg/crypto"
)

var (
	nftContract   = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	tokenContract = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	tokenDecimals = int32(18)
)

func main() {
	if err := run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Same domain as the node, so the signatures below verify there
	cfg, err := params.LoadFromEnv("")
	if err != nil {
		return err
	}
	hasher := order.NewHasher(crypto.EIP712Domain{
		Name:              cfg.Engine.DomainName,
		Version:           cfg.Engine.DomainVersion,
		ChainID:           cfg.Engine.ChainID,
		VerifyingContract: cfg.Engine.VerifyingContract,
	})
	verifier := transaction.NewVerifier(hasher)

	// Step 1: Generate or load keys
	maker, err := loadOrGenerate("MAKER_KEY")
	if err != nil {
		return err
	}
	taker, err := loadOrGenerate("TAKER_KEY")
	if err != nil {
		return err
	}
	fmt.Printf("Maker:  %s (private key %s, KEEP SECRET!)\n", maker.Address().Hex(), maker.PrivateKeyHex())
	fmt.Printf("Taker:  %s (private key %s, KEEP SECRET!)\n\n", taker.Address().Hex(), taker.PrivateKeyHex())

	// Step 2: Allowlist the taker (plus two other buyers) for NFT #1
	tokenID := big.NewInt(1)
	leaves := []common.Hash{crypto.AllowlistLeaf(taker.Address(), tokenID)}
	for i := 0; i < 2; i++ {
		other, err := crypto.GenerateKey()
		if err != nil {
			return err
		}
		leaves = append(leaves, crypto.AllowlistLeaf(other.Address(), tokenID))
	}
	tree, err := crypto.NewMerkleTree(leaves)
	if err != nil {
		return err
	}
	proof, err := tree.Proof(leaves[0])
	if err != nil {
		return err
	}
	fmt.Printf("Allowlist root: %s (%d members)\n\n", tree.Root().Hex(), len(leaves))

	// Step 3: Build the ASK (maker lists NFT #1) and the mirrored BID
	price := decimal.RequireFromString("10").Shift(tokenDecimals).BigInt()
	now := uint64(time.Now().Unix())
	end := now + uint64((24 * time.Hour).Seconds())

	askSalt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}
	bidSalt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}

	ask := &order.Order{
		Maker:      maker.Address(),
		MakeAsset:  order.Asset{Type: order.ERC721, Contract: nftContract, ID: tokenID, Amount: big.NewInt(1)},
		TakeAsset:  order.Asset{Type: order.ERC20, Contract: tokenContract, ID: big.NewInt(0), Amount: price},
		Type:       order.Ask,
		Salt:       askSalt,
		Start:      now,
		End:        end,
		MerkleRoot: tree.Root(),
	}
	bid := &order.Order{
		Maker:       taker.Address(),
		MakeAsset:   order.Asset{Type: order.ERC20, Contract: tokenContract, ID: big.NewInt(0), Amount: price},
		TakeAsset:   order.Asset{Type: order.ERC721, Contract: nftContract, ID: tokenID, Amount: big.NewInt(1)},
		Type:        order.Bid,
		Salt:        bidSalt,
		Start:       now,
		End:         end,
		MerkleProof: proof,
	}

	split, err := fee.Compute(price, cfg.Engine.FeeBps)
	if err != nil {
		return err
	}
	fmt.Println("Order Details:")
	fmt.Printf("  Ask:    %s for %s tokens\n", ask.MakeAsset, formatTokens(price))
	fmt.Printf("  Fee:    %s%% = %s tokens to %s\n", fee.Percent(cfg.Engine.FeeBps), formatTokens(split.Fee), cfg.Engine.FeeRecipient.Hex())
	fmt.Printf("  Seller receives: %s tokens\n", formatTokens(split.Net))
	fmt.Printf("  Valid:  %s -> %s\n\n", time.Unix(int64(now), 0).UTC().Format(time.RFC3339), time.Unix(int64(end), 0).UTC().Format(time.RFC3339))

	// Step 4: Sign both orders with EIP-712
	if err := hasher.Sign(maker, ask); err != nil {
		return err
	}
	if err := hasher.Sign(taker, bid); err != nil {
		return err
	}
	askDigest, err := hasher.Digest(ask)
	if err != nil {
		return err
	}
	fmt.Printf("Ask digest: %s\n", askDigest.Hex())
	if err := hasher.VerifySignature(ask, askDigest); err != nil {
		return fmt.Errorf("self-check failed: %w", err)
	}
	fmt.Println("✓ Signatures VALID")
	fmt.Println()

	// Step 5: Print requests for the API
	if err := printJSON("Fund the parties on a DEV_MINT node:\n  POST http://localhost:8080/api/v1/dev/mint", []api.MintRequest{
		{To: maker.Address().Hex(), Asset: transaction.FromAsset(ask.MakeAsset)},
		{To: taker.Address().Hex(), Asset: transaction.FromAsset(bid.MakeAsset)},
	}); err != nil {
		return err
	}

	match := transaction.MatchRequest{
		MakerOrder: *transaction.FromOrder(ask),
		TakerOrder: *transaction.FromOrder(bid),
	}
	if err := printJSON("Match the pair:\n  POST http://localhost:8080/api/v1/orders/match", match); err != nil {
		return err
	}

	cancel, err := verifier.NewCancelRequest(maker, ask)
	if err != nil {
		return err
	}
	if err := printJSON("Or cancel the ask instead:\n  POST http://localhost:8080/api/v1/orders/cancel", cancel); err != nil {
		return err
	}

	accept, err := verifier.NewAcceptBidRequest(maker, bid, price, nil)
	if err != nil {
		return err
	}
	return printJSON("Or have the maker accept the bid directly:\n  POST http://localhost:8080/api/v1/orders/accept-bid", accept)
}

func loadOrGenerate(env string) (*crypto.Signer, error) {
	if key := os.Getenv(env); key != "" {
		return crypto.FromPrivateKeyHex(key)
	}
	return crypto.GenerateKey()
}

func formatTokens(v *big.Int) string {
	return decimal.NewFromBigInt(v, -tokenDecimals).String()
}

func printJSON(title string, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(title)
	fmt.Println("  Body:")
	fmt.Println(string(out))
	fmt.Println()
	return nil
}
