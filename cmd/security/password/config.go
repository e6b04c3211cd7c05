package password

import (
	"fmt"
	"runtime"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy bounds accepted passwords. Lengths are counted in runes.
type Policy struct {
	MinLength int
	MaxLength int
	// RejectVeryWeak enables a minimal weak-pattern rejection.
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// Options overrides DefaultConfig. Zero values keep the default.
type Options struct {
	MinLength      int
	MaxLength      int
	RejectVeryWeak bool

	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint32
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns the baseline used for interactive logins.
func DefaultConfig() Config {
	// Parallelism is clamped to [1..4].
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024, // 64 MiB
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength: 8,
			MaxLength: 256,
		},
	}
}

// New applies opts on top of DefaultConfig and validates the result.
func New(opts Options) (Config, error) {
	cfg := DefaultConfig()

	if opts.MinLength != 0 {
		if err := checkRange("min_length", uint32(max(opts.MinLength, 0)), 1, 1024); err != nil { // #nosec G115 -- negative clamped to 0.
			return Config{}, err
		}
		cfg.Policy.MinLength = opts.MinLength
	}
	if opts.MaxLength != 0 {
		if err := checkRange("max_length", uint32(max(opts.MaxLength, 0)), 1, 4096); err != nil { // #nosec G115 -- negative clamped to 0.
			return Config{}, err
		}
		cfg.Policy.MaxLength = opts.MaxLength
	}
	cfg.Policy.RejectVeryWeak = opts.RejectVeryWeak

	if opts.MemoryKiB != 0 {
		if err := checkRange("argon2_memory_kib", opts.MemoryKiB, 8*1024, 1024*1024); err != nil {
			return Config{}, err
		}
		cfg.Params.MemoryKiB = opts.MemoryKiB
	}
	if opts.Iterations != 0 {
		if err := checkRange("argon2_iterations", opts.Iterations, 1, 20); err != nil {
			return Config{}, err
		}
		cfg.Params.Iterations = opts.Iterations
	}
	if opts.Parallelism != 0 {
		if err := checkRange("argon2_parallelism", opts.Parallelism, 1, 64); err != nil {
			return Config{}, err
		}
		cfg.Params.Parallelism = uint8(opts.Parallelism) // #nosec G115 -- bounded to 64 above.
	}
	if opts.SaltLength != 0 {
		if err := checkRange("argon2_salt_len", opts.SaltLength, 8, 64); err != nil {
			return Config{}, err
		}
		cfg.Params.SaltLength = opts.SaltLength
	}
	if opts.KeyLength != 0 {
		if err := checkRange("argon2_key_len", opts.KeyLength, 16, 64); err != nil {
			return Config{}, err
		}
		cfg.Params.KeyLength = opts.KeyLength
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}

	return cfg, nil
}

func checkRange(name string, v, minVal, maxVal uint32) error {
	if v < minVal || v > maxVal {
		return fmt.Errorf("%s: out of range [%d..%d]", name, minVal, maxVal)
	}
	return nil
}
