package scan

import (
	"os"
	"runtime"
	"strconv"

	"statscan/internal/config"
)

// runtimeConfig is the resolved parallelism for one scan. Job values win;
// environment variables fill in what the job leaves unset.
type runtimeConfig struct {
	workers    int
	batchSize  int
	bufferSize int
}

func newRuntimeConfig(job config.Job) runtimeConfig {
	return runtimeConfig{
		workers:    pickInt(job.Runtime.Workers, getenvInt("STATSCAN_WORKERS", runtime.GOMAXPROCS(0))),
		batchSize:  pickInt(job.Runtime.BatchSize, getenvInt("STATSCAN_BATCH_SIZE", 1024)),
		bufferSize: pickInt(job.Runtime.ChannelBuffer, getenvInt("STATSCAN_CH_BUFFER", 4)),
	}
}

// getenvInt reads an int from environment, returning def when unset/invalid.
func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// pickInt chooses the first positive value 'a', otherwise returns 'b'.
func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}
