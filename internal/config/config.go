// Package config defines the coordinator's typed configuration struct and
// loads it from command-line flags (no config file is read), per SPEC_FULL.md's
// "Configuration" ambient-stack section. HTTP/CLI wiring stays out of
// scope per spec.md §1; this package only owns the struct every in-scope
// component reads from.
package config

import (
	"fmt"
	"os"
	"time"

	flags "github.com/jessevdk/go-flags"
)

// Config is the coordinator's full runtime configuration, grounded on
// lnd.go's `config` struct: one flat struct with go-flags struct tags,
// loaded once at startup and passed down by value/pointer to every
// subsystem constructor.
type Config struct {
	// Postgres is the relational store DSN, per spec.md §3's relational
	// entities (orders, positions, matches, funding, protocols,
	// dlcchannels).
	Postgres string `long:"postgres" description:"Postgres connection string for the relational store" required:"true"`

	// DlcStoreDir is the directory for the bbolt-backed DLC key-value
	// store and the Lightning monitor/manager blob store, per spec.md §6.
	DlcStoreDir string `long:"dlcstoredir" description:"directory for the DLC key-value store" default:"./data/dlc"`

	// BackupBaseURL is the encrypted remote backup service endpoint, an
	// external HTTP collaborator per spec.md §1; only its address is
	// in-scope configuration, not the transport itself.
	BackupBaseURL string `long:"backup.baseurl" description:"base URL of the encrypted remote backup service"`

	// FundingFeeInterval is how often the funding-fee engine's scheduled
	// job runs, per spec.md §4.5 ("scheduled every N minutes; default
	// hourly").
	FundingFeeInterval time.Duration `long:"fundingfee.interval" description:"funding-fee job cadence" default:"1h"`

	// FundingFeeMaxRetries and FundingFeeRetryDelay implement spec.md §5's
	// "Retry" policy ("retries up to 10 times at 5-second spacing").
	FundingFeeMaxRetries int           `long:"fundingfee.maxretries" default:"10"`
	FundingFeeRetryDelay time.Duration `long:"fundingfee.retrydelay" default:"5s"`

	// RolloverWindow governs how long before a position's expiry the
	// coordinator may propose a rollover renewal.
	RolloverWindow time.Duration `long:"rollover.window" default:"24h"`

	// RolloverExtension is spec.md §9 Open Question 4's hard-coded +7
	// days, kept configurable per-deployment as the open question
	// recommends.
	RolloverExtension time.Duration `long:"rollover.extension" default:"168h"`

	// LiquidationInterval is the liquidation monitor's tick cadence, per
	// spec.md §4.7 ("runs on a short cadence").
	LiquidationInterval time.Duration `long:"liquidation.interval" default:"5s"`

	// MakerAllowList gates which trader pubkeys (hex-encoded) may submit
	// Limit orders when maker gating is on, per spec.md §4.1.
	MakerAllowList []string `long:"maker.allow" description:"hex-encoded trader pubkeys allowed to place limit orders"`
	MakerGating    bool     `long:"maker.gating" description:"require maker allow-list membership for limit orders"`

	// MinAppVersion gates Market order submission, per spec.md §4.1.
	MinAppVersion string `long:"minappversion" default:"1.0.0"`

	// FundingTxConfirmationDepth is the configured funding burial depth.
	// It is not passed to the DLC manager, whose restart scan moves a
	// contract to Confirmed once its funding output is buried at depth 1.
	FundingTxConfirmationDepth uint32 `long:"confirmationdepth" default:"1"`

	// OnChainFeeRateSatPerVByte seeds the coin selector's target fee
	// rate when no fee estimator override is supplied.
	OnChainFeeRateSatPerVByte uint64 `long:"feerate.satpervbyte" default:"2"`

	// MatchingFeeRate parametrizes the order-matching fee formula of
	// spec.md §4.1.
	MatchingFeeRate string `long:"matchingfeerate" default:"0.003"`
}

// Load parses args (typically os.Args[1:]) into a Config, applying
// defaults for any flag not supplied, per go-flags' standard behavior —
// the same library and calling convention lnd.go's loadConfig uses.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	return cfg, nil
}

// LoadFromEnvOrDefault is a convenience wrapper used by tests and
// cmd/coordinatord to load configuration from the process's own
// arguments.
func LoadFromEnvOrDefault() (*Config, error) {
	return Load(os.Args[1:])
}
