package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"fortio.org/safecast"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"shaker.dev/pkg/shaker/internal/adapter"
	m "shaker.dev/pkg/shaker/internal/model"
)

const (
	configVersionKey     = "version"
	currentConfigVersion = 1

	configBaseName   = "shaker"
	configFileName   = configBaseName + ".yaml"
	configFolderPath = "."

	corpusFlagName   = "corpus"
	testsFlagName    = "tests"
	parallelFlagName = "parallel"
	seedFlagName     = "seed"
	budgetFlagName   = "budget"
	targetFlagName   = "target"
	outputFlagName   = "output"
	hexDiffFlagName  = "hexdiff"
	verboseFlagName  = "verbose"

	runTestsKey    = "run.tests"
	runParallelKey = "run.parallel"
	runSeedKey     = "run.seed"

	sameExtProbabilityKey    = "mutation.same_ext_probability"
	minBytesChangedKey       = "mutation.min_bytes_changed"
	maxBytesChangedKey       = "mutation.max_bytes_changed"
	maxRelativeChangeKey     = "mutation.max_relative_change"
	sizeChangeProbabilityKey = "mutation.size_change_probability"
	biggerSizeProbabilityKey = "mutation.bigger_size_probability"
	minSizeChangeKey         = "mutation.min_size_change"
	maxSizeChangeKey         = "mutation.max_size_change"

	execBudgetKey          = "exec.budget"
	execKillGraceKey       = "exec.kill_grace"
	execCleanExitPassesKey = "exec.clean_exit_passes"
	targetCommandKey       = "target.command"
	targetArgsKey          = "target.args"

	sessionDiffExtKey = "session.diff_ext"
	sessionLogNameKey = "session.log_name"
	sessionLogExtKey  = "session.log_ext"

	corpusDirKey  = "paths.corpus"
	logsDirKey    = "paths.logs"
	crashesDirKey = "paths.crashes"
	workDirKey    = "paths.work"

	defaultTests         = 300
	defaultParallel      = 1
	defaultBudget        = time.Second
	defaultKillGrace     = 2 * time.Second
	defaultDiffExt       = "bsdiff4"
	defaultSessionLog    = "general"
	defaultSessionLogExt = "log"
	defaultCorpusDir     = "inputs"
	defaultLogsDir       = "log"
	defaultCrashesDir    = "crashed"
	defaultWorkDir       = "."

	envPrefix = "SHAKER"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogFilename   = ".shaker.log"
	defaultLogLevel      = int(slog.LevelInfo)
	defaultLogVerbose    = false
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

var (
	globalLogger  *slog.Logger
	configFileErr error
)

func init() {
	// A missing .env is the common case.
	_ = godotenv.Load()

	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configFolderPath)
	viper.SetConfigFile(filepath.Join(configFolderPath, configFileName))
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	setDefaults()

	configFileErr = readConfigFile(viper.GetViper())
}

// readConfigFile loads the config file bound to v. A missing file is not an
// error; an unreadable or malformed one is.
func readConfigFile(v *viper.Viper) error {
	err := v.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return fmt.Errorf("read config file %s: %w", v.ConfigFileUsed(), err)
}

func setDefaults() {
	mutation := m.DefaultMutationConfig()

	viper.SetDefault(configVersionKey, currentConfigVersion)

	viper.SetDefault(runTestsKey, defaultTests)
	viper.SetDefault(runParallelKey, defaultParallel)
	viper.SetDefault(runSeedKey, 0)

	viper.SetDefault(sameExtProbabilityKey, mutation.SameExtProbability)
	viper.SetDefault(minBytesChangedKey, mutation.MinBytesChanged)
	viper.SetDefault(maxBytesChangedKey, mutation.MaxBytesChanged)
	viper.SetDefault(maxRelativeChangeKey, mutation.MaxRelativeChange)
	viper.SetDefault(sizeChangeProbabilityKey, mutation.SizeChangeProbability)
	viper.SetDefault(biggerSizeProbabilityKey, mutation.BiggerSizeProbability)
	viper.SetDefault(minSizeChangeKey, mutation.MinSizeChange)
	viper.SetDefault(maxSizeChangeKey, mutation.MaxSizeChange)

	viper.SetDefault(execBudgetKey, defaultBudget)
	viper.SetDefault(execKillGraceKey, defaultKillGrace)
	viper.SetDefault(execCleanExitPassesKey, false)
	viper.SetDefault(targetCommandKey, "")
	viper.SetDefault(targetArgsKey, []string{})

	viper.SetDefault(sessionDiffExtKey, defaultDiffExt)
	viper.SetDefault(sessionLogNameKey, defaultSessionLog)
	viper.SetDefault(sessionLogExtKey, defaultSessionLogExt)

	viper.SetDefault(corpusDirKey, defaultCorpusDir)
	viper.SetDefault(logsDirKey, defaultLogsDir)
	viper.SetDefault(crashesDirKey, defaultCrashesDir)
	viper.SetDefault(workDirKey, defaultWorkDir)

	// Logging defaults (used by config/env and as fallbacks for flags).
	viper.SetDefault(logFilenameKey, defaultLogFilename)
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logVerboseKey, defaultLogVerbose)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)
}

// storeLayout derives where session artifacts go from the current config.
func storeLayout() adapter.StoreLayout {
	return adapter.StoreLayout{
		LogRoot:   m.Path(viper.GetString(logsDirKey)),
		CrashRoot: m.Path(viper.GetString(crashesDirKey)),
		MainLog:   m.Path(viper.GetString(sessionLogNameKey) + adapter.NormalizeExt(viper.GetString(sessionLogExtKey))),
		DiffExt:   viper.GetString(sessionDiffExtKey),
	}
}

func mutationSettings() m.MutationConfig {
	return m.MutationConfig{
		SameExtProbability:    viper.GetFloat64(sameExtProbabilityKey),
		MinBytesChanged:       viper.GetInt(minBytesChangedKey),
		MaxBytesChanged:       viper.GetInt(maxBytesChangedKey),
		MaxRelativeChange:     viper.GetFloat64(maxRelativeChangeKey),
		SizeChangeProbability: viper.GetFloat64(sizeChangeProbabilityKey),
		BiggerSizeProbability: viper.GetFloat64(biggerSizeProbabilityKey),
		MinSizeChange:         viper.GetInt(minSizeChangeKey),
		MaxSizeChange:         viper.GetInt(maxSizeChangeKey),
	}
}

// execSettings builds the target configuration; extraArgs, when given,
// replace target.args.
func execSettings(extraArgs []string) m.ExecConfig {
	args := viper.GetStringSlice(targetArgsKey)
	if len(extraArgs) > 0 {
		args = extraArgs
	}

	return m.ExecConfig{
		Command:         viper.GetString(targetCommandKey),
		Args:            args,
		Budget:          viper.GetDuration(execBudgetKey),
		KillGrace:       viper.GetDuration(execKillGraceKey),
		CleanExitPasses: viper.GetBool(execCleanExitPassesKey),
	}
}

func seedSetting() (uint64, error) {
	seed, err := safecast.Conv[uint64](viper.GetInt64(runSeedKey))
	if err != nil {
		return 0, &m.ConfigError{Field: runSeedKey, Reason: fmt.Sprintf("%d: %v", viper.GetInt64(runSeedKey), err)}
	}

	return seed, nil
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// Allow numeric slog levels as well (e.g. -4 for debug).
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// configureLogger configures the global slog logger.
//
// By default it logs at Info; if verbose is true it logs at Debug.
func configureLogger(logPath string, verbose bool) {
	if strings.TrimSpace(logPath) == "" {
		logPath = viper.GetString(logFilenameKey)
	}

	if strings.TrimSpace(logPath) == "" {
		logPath = defaultLogFilename
	}

	var logLevel slog.Level
	if verbose {
		logLevel = slog.LevelDebug
	} else {
		logLevel = parseSlogLevel(viper.GetString(logLevelKey), slog.LevelInfo)
	}

	logWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}

	handler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	})

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
}
