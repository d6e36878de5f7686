package params

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// MaxFeeBps is 100% expressed in basis points.
const MaxFeeBps = 10000

type Engine struct {
	// FeeBps is charged on the fungible leg of every settlement (500 = 5%).
	FeeBps       int64
	FeeRecipient common.Address

	// EIP-712 domain. Changing any of these invalidates every signed order.
	DomainName        string
	DomainVersion     string
	ChainID           *big.Int
	VerifyingContract common.Address
}

type Node struct {
	DataDir     string // Pebble database directory; empty keeps state in memory
	JournalFile string // JSON-lines settlement journal; empty disables it
	LogFile     string
	APIAddr     string
	CORSOrigins []string

	// DevMint exposes POST /api/v1/dev/mint. Never enable outside local development.
	DevMint bool

	EnableP2P    bool
	P2PListen    string   // multiaddr, e.g. /ip4/0.0.0.0/tcp/4001
	P2PBootstrap []string // full /p2p/ multiaddrs
}

type Config struct {
	Engine Engine
	Node   Node
}

func Default() Config {
	return Config{
		Engine: Engine{
			FeeBps:            500,
			FeeRecipient:      common.HexToAddress("0x000000000000000000000000000000000000fee5"), // dev treasury
			DomainName:        "OrderSwap",
			DomainVersion:     "1",
			ChainID:           big.NewInt(1337), // local dev chain
			VerifyingContract: common.Address{},
		},
		Node: Node{
			DataDir:     "data/orderswap.db",
			JournalFile: "data/settlements.jsonl",
			LogFile:     "data/node.log",
			APIAddr:     ":8080",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
			P2PListen:   "/ip4/0.0.0.0/tcp/4001",
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("FEE_BPS"); v != "" {
		bps, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("FEE_BPS: %w", err)
		}
		cfg.Engine.FeeBps = bps
	}

	if v := os.Getenv("FEE_RECIPIENT"); v != "" {
		if !common.IsHexAddress(v) {
			return cfg, fmt.Errorf("FEE_RECIPIENT: invalid address %q", v)
		}
		cfg.Engine.FeeRecipient = common.HexToAddress(v)
	}

	if v := os.Getenv("CHAIN_ID"); v != "" {
		id, ok := new(big.Int).SetString(v, 10)
		if !ok || id.Sign() <= 0 {
			return cfg, fmt.Errorf("CHAIN_ID: invalid value %q", v)
		}
		cfg.Engine.ChainID = id
	}

	if v := os.Getenv("VERIFYING_CONTRACT"); v != "" {
		if !common.IsHexAddress(v) {
			return cfg, fmt.Errorf("VERIFYING_CONTRACT: invalid address %q", v)
		}
		cfg.Engine.VerifyingContract = common.HexToAddress(v)
	}

	cfg.Engine.DomainName = getEnv("DOMAIN_NAME", cfg.Engine.DomainName)
	cfg.Engine.DomainVersion = getEnv("DOMAIN_VERSION", cfg.Engine.DomainVersion)

	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.JournalFile = getEnv("JOURNAL_FILE", cfg.Node.JournalFile)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.P2PListen = getEnv("P2P_LISTEN", cfg.Node.P2PListen)

	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Node.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("P2P_BOOTSTRAP"); v != "" {
		cfg.Node.P2PBootstrap = splitList(v)
	}
	if v := os.Getenv("ENABLE_P2P"); v != "" {
		cfg.Node.EnableP2P = v == "true"
	}
	if v := os.Getenv("DEV_MINT"); v != "" {
		cfg.Node.DevMint = v == "true"
	}

	return cfg, cfg.Validate()
}

// Validate checks invariants the engine relies on at settlement time.
func (c Config) Validate() error {
	if c.Engine.FeeBps < 0 || c.Engine.FeeBps > MaxFeeBps {
		return fmt.Errorf("fee bps %d outside [0, %d]", c.Engine.FeeBps, MaxFeeBps)
	}
	if c.Engine.FeeBps > 0 && c.Engine.FeeRecipient == (common.Address{}) {
		return fmt.Errorf("fee bps %d set without a fee recipient", c.Engine.FeeBps)
	}
	if c.Engine.ChainID == nil || c.Engine.ChainID.Sign() <= 0 {
		return fmt.Errorf("chain id must be positive")
	}
	if c.Engine.DomainName == "" || c.Engine.DomainVersion == "" {
		return fmt.Errorf("domain name and version are required")
	}
	return nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
