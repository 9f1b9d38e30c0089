package config

import "time"

type WorkerKeyStruct struct {
	ExpirySweepLock    string
	ExpirySweepLockTTL time.Duration
}

var WorkerKey = &WorkerKeyStruct{
	ExpirySweepLock:    "worker:expiry_sweep:lock",
	ExpirySweepLockTTL: 50 * time.Second,
}
