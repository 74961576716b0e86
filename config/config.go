// Package config gathers every tunable of the execution core into a single
// struct with reproducible defaults, plus a YAML loader for operators who
// prefer a config file over constructing Config literals in Go.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable the execution core's components read. Zero
// values are never used directly; call Default() and override only the
// fields a deployment needs to change.
type Config struct {
	// MaxSteps is the per-agent step budget: how many think/act iterations
	// the ReAct loop runs for one plan step before it stops and produces a
	// final summary. A profile's MaxStepsOverride takes precedence.
	MaxSteps int `yaml:"max_steps"`

	// ParallelToolCalls, when true, invites the model to return multiple
	// tool calls in a single assistant turn by saying so in the system
	// prompt; the dispatcher runs whatever calls arrive concurrently
	// regardless of this flag (non-terminator calls always happen-before
	// any terminator call in the same turn).
	ParallelToolCalls bool `yaml:"parallel_tool_calls"`

	// DebugDetail is passed to the model in the system prompt preamble of
	// every think call (0 = minimal, higher = more verbose).
	DebugDetail int `yaml:"debug_detail"`

	// ConversationMemoryMaxChars is the serialized-size threshold (combined
	// conversation + agent message lists) above which the Memory Compressor
	// triggers, independent of the repeated-result forced trigger.
	ConversationMemoryMaxChars int `yaml:"conversation_memory_max_chars"`
	// SummaryBandMinChars/SummaryBandMaxChars bound the generated summary's
	// target length; over-long summaries are hard-truncated at the max.
	SummaryBandMinChars int `yaml:"summary_band_min_chars"`
	SummaryBandMaxChars int `yaml:"summary_band_max_chars"`

	// MaxMemory bounds the number of rounds kept in full fidelity before
	// the retention ratio forces compression.
	MaxMemory int `yaml:"max_memory"`

	// EnableConversationMemory controls whether the shared conversation
	// memory is included in each think prompt; when false, only the
	// agent's own memory is sent. Compression is not affected by it.
	EnableConversationMemory bool `yaml:"enable_conversation_memory"`

	// RetentionRatio is the fraction of rounds kept verbatim on a forced
	// or threshold-triggered compression.
	RetentionRatio float64 `yaml:"retention_ratio"`

	// RepeatedResultThreshold is the number of identical consecutive tool
	// results that force a compression pass regardless of size.
	RepeatedResultThreshold int `yaml:"repeated_result_threshold"`

	// EarlyTerminationThreshold is the number of consecutive tool-free
	// model responses after which the step fails with LLM_TOOLLESS.
	EarlyTerminationThreshold int `yaml:"early_termination_threshold"`

	// UserInputTimeout bounds how long a form-input request waits for a
	// response; on expiry a synthetic "Input timeout" user message is
	// appended to agent memory and the step continues.
	UserInputTimeout time.Duration `yaml:"user_input_timeout"`
	// FormPollInterval is how often the form-input rendezvous polls for an
	// answer.
	FormPollInterval time.Duration `yaml:"form_poll_interval"`
	// InterruptionCheckInterval is how often a blocked wait re-checks the
	// cooperative interruption flag, independent of FormPollInterval.
	InterruptionCheckInterval time.Duration `yaml:"interruption_check_interval"`

	// LLMMaxRetries bounds retry attempts for a single think call.
	LLMMaxRetries int `yaml:"llm_max_retries"`
	// RetryBaseDelay and RetryMaxDelay parameterize the exponential
	// backoff formula min(base*2^(n-1), max).
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay  time.Duration `yaml:"retry_max_delay"`
}

// Default returns the reproduced numeric defaults.
func Default() Config {
	return Config{
		MaxSteps:                   20,
		ParallelToolCalls:          true,
		DebugDetail:                0,
		ConversationMemoryMaxChars: 30000,
		SummaryBandMinChars:        3000,
		SummaryBandMaxChars:        4000,
		MaxMemory:                  50,
		EnableConversationMemory:   true,
		RetentionRatio:             0.40,
		RepeatedResultThreshold:    3,
		EarlyTerminationThreshold:  3,
		UserInputTimeout:           10 * time.Minute,
		FormPollInterval:           500 * time.Millisecond,
		InterruptionCheckInterval:  2 * time.Second,
		LLMMaxRetries:              3,
		RetryBaseDelay:             1000 * time.Millisecond,
		RetryMaxDelay:              60000 * time.Millisecond,
	}
}

// Load reads a YAML config file, starting from Default() and overriding any
// field present in the file.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}
