package config

import (
	"github.com/Sumatoshi-tech/bisector/pkg/checkpoint"
	"github.com/Sumatoshi-tech/bisector/pkg/persist"
	"github.com/Sumatoshi-tech/bisector/pkg/search"
	"github.com/Sumatoshi-tech/bisector/pkg/switcher"
)

// Search defaults.
const (
	DefaultIterations      = search.DefaultIterations
	DefaultPruneIterations = search.DefaultPruneIterations
	DefaultPrune           = false
	DefaultIncremental     = true
	DefaultFileArgs        = false
	DefaultVerify          = true
	DefaultCheckMonotonic  = false
)

// State defaults.
const (
	DefaultStateFile     = checkpoint.DefaultStateFile
	DefaultStateCodec    = persist.CodecJSON
	DefaultStateCompress = false
)

// Environment channel defaults.
const (
	DefaultGoodSetEnv = switcher.DefaultGoodSetEnv
	DefaultBadSetEnv  = switcher.DefaultBadSetEnv
)

// Logging and output defaults.
const (
	DefaultLogLevel     = "info"
	DefaultLogJSON      = false
	DefaultOutputFormat = "text"
)

// Observability defaults.
const (
	DefaultOTLPInsecure = false
	DefaultSampleRatio  = 1.0
	DefaultEnvironment  = "local"
)
