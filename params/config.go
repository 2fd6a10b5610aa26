package params

import (
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Node holds process-level settings.
type Node struct {
	ListenAddr string
	DBPath     string
	LogFile    string
}

// Genesis holds the protocol parameters used to seed the config singleton on
// first boot. A config already persisted in the store wins on restart.
type Genesis struct {
	Owner      common.Address
	Liquidator common.Address
	Custody    common.Address

	LiquidationDeadline     int64 // unix seconds
	LiquidationThresholdBps int64
	LiquidationPenaltyBps   int64

	CollateralAsset common.Address
	LoanAsset       common.Address
	StableAsset     common.Address
}

// Book holds the tick grid the order book is pre-allocated over.
type Book struct {
	TickMin  int64
	TickMax  int64
	TickStep int64
}

type Config struct {
	Node    Node
	Genesis Genesis
	Book    Book
}

func Default() Config {
	return Config{
		Node: Node{
			ListenAddr: ":8080",
			DBPath:     "data/lendex-db",
			LogFile:    "data/node.log",
		},
		Genesis: Genesis{
			// 10 years out: effectively "never" until an operator sets it.
			LiquidationDeadline:     4_102_444_800,
			LiquidationThresholdBps: 15_000, // ratio 1.5
			LiquidationPenaltyBps:   1_000,  // 10% of the loan per call
		},
		Book: Book{
			TickMin:  500_000, // 0.50
			TickMax:  1_000_000,
			TickStep: 5_000, // 0.005
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load() // loads .env from current directory
	}

	cfg.Node.ListenAddr = getEnv("LISTEN_ADDR", cfg.Node.ListenAddr)
	cfg.Node.DBPath = getEnv("DB_PATH", cfg.Node.DBPath)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)

	cfg.Genesis.Owner = envAddress("PROTOCOL_OWNER", cfg.Genesis.Owner)
	cfg.Genesis.Liquidator = envAddress("PROTOCOL_LIQUIDATOR", cfg.Genesis.Liquidator)
	cfg.Genesis.Custody = envAddress("PROTOCOL_CUSTODY", cfg.Genesis.Custody)
	cfg.Genesis.CollateralAsset = envAddress("COLLATERAL_ASSET", cfg.Genesis.CollateralAsset)
	cfg.Genesis.LoanAsset = envAddress("LOAN_ASSET", cfg.Genesis.LoanAsset)
	cfg.Genesis.StableAsset = envAddress("STABLE_ASSET", cfg.Genesis.StableAsset)

	cfg.Genesis.LiquidationDeadline = envInt64("LIQUIDATION_DEADLINE", cfg.Genesis.LiquidationDeadline)
	cfg.Genesis.LiquidationThresholdBps = envInt64("LIQUIDATION_THRESHOLD_BPS", cfg.Genesis.LiquidationThresholdBps)
	cfg.Genesis.LiquidationPenaltyBps = envInt64("LIQUIDATION_PENALTY_BPS", cfg.Genesis.LiquidationPenaltyBps)

	cfg.Book.TickMin = envInt64("BOOK_TICK_MIN", cfg.Book.TickMin)
	cfg.Book.TickMax = envInt64("BOOK_TICK_MAX", cfg.Book.TickMax)
	cfg.Book.TickStep = envInt64("BOOK_TICK_STEP", cfg.Book.TickStep)

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt64(key string, defaultValue int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func envAddress(key string, defaultValue common.Address) common.Address {
	raw := os.Getenv(key)
	if raw == "" || !common.IsHexAddress(raw) {
		return defaultValue
	}
	return common.HexToAddress(raw)
}
