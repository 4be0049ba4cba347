package tools

import (
	"math"

	"github.com/rahul/archcopilot/internal/design"
)

// Storage heuristics used when the request does not say otherwise.
const (
	RecordsPerUser   = 12
	AvgRecordSizeKB  = 8.0
	RetentionDays    = 365
	AvgPayloadKB     = 2.0
	steadyBurst      = 1.4
	spikyBurst       = 1.8
	secondsPerDay    = 86400
	requestsPerUser  = 0.1
	concurrencyRatio = 10
)

// QPS is a read/write split of a request rate.
type QPS struct {
	BaseQPS  float64 `json:"base_qps"`
	PeakQPS  float64 `json:"peak_qps"`
	ReadQPS  float64 `json:"read_qps"`
	WriteQPS float64 `json:"write_qps"`
}

// Storage is a storage growth estimate.
type Storage struct {
	DailyGB         float64 `json:"daily_gb"`
	RetentionGB     float64 `json:"total_gb_retention"`
	MonthlyGrowthGB float64 `json:"monthly_growth_gb"`
}

// CalcQPS estimates query rates from daily actives and peak concurrency.
func CalcQPS(dau, peakConcurrency int, readWriteRatio, burstFactor float64) QPS {
	base := math.Max(float64(dau)*requestsPerUser/secondsPerDay, float64(peakConcurrency)/concurrencyRatio)
	peak := base * burstFactor
	read := peak * (readWriteRatio / (1 + readWriteRatio))
	write := peak - read
	return QPS{
		BaseQPS:  round(base, 2),
		PeakQPS:  round(peak, 2),
		ReadQPS:  round(read, 2),
		WriteQPS: round(write, 2),
	}
}

// CalcStorage estimates storage growth for the retention window.
func CalcStorage(recordsPerUser int, avgRecordSizeKB float64, retentionDays, dau int) Storage {
	daily := float64(dau) * float64(recordsPerUser) * avgRecordSizeKB / 1024 / 1024
	return Storage{
		DailyGB:         round(daily, 3),
		RetentionGB:     round(daily*float64(retentionDays), 3),
		MonthlyGrowthGB: round(daily*30, 3),
	}
}

// BurstFactor returns the peak multiplier for a traffic pattern.
func BurstFactor(pattern string) float64 {
	if pattern == design.TrafficSpiky {
		return spikyBurst
	}
	return steadyBurst
}

// Baseline computes the deterministic sizing for a request. The effective peak
// is never below the peak the caller declared.
func Baseline(req design.DesignRequest) design.Baseline {
	qps := CalcQPS(req.DAU, req.PeakConcurrency(), req.ReadWriteRatio, BurstFactor(req.Pattern()))
	storage := CalcStorage(RecordsPerUser, AvgRecordSizeKB, RetentionDays, req.DAU)
	effective := math.Max(qps.PeakQPS, float64(req.PeakRPS))
	return design.Baseline{
		BaseQPS:          qps.BaseQPS,
		PeakQPS:          qps.PeakQPS,
		ReadQPS:          qps.ReadQPS,
		WriteQPS:         qps.WriteQPS,
		DeclaredPeakRPS:  req.PeakRPS,
		EffectivePeakQPS: round(effective, 2),
		DailyGB:          storage.DailyGB,
		RetentionGB:      storage.RetentionGB,
		MonthlyGrowthGB:  storage.MonthlyGrowthGB,
		BandwidthGbps:    round(effective*AvgPayloadKB*1024/1e6, 3),
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
