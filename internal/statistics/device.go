package statistics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/senses3/coolercontrol/internal/history"
)

const deviceSubsystem = "device"

// DeviceCollector exposes every device's latest sampled values as
// Prometheus gauges, pulled from the history store on each scrape - a
// per-scrape live-read collector covering the full
// temp/duty/rpm/freq/watts surface a coolerctld channel can carry.
type DeviceCollector struct {
	store *history.Store

	temp  *prometheus.Desc
	duty  *prometheus.Desc
	rpm   *prometheus.Desc
	freq  *prometheus.Desc
	watts *prometheus.Desc
}

// NewDeviceCollector creates a collector that reads store's latest
// snapshot on every scrape.
func NewDeviceCollector(store *history.Store) *DeviceCollector {
	labels := []string{"device_uid", "channel"}
	return &DeviceCollector{
		store: store,
		temp: prometheus.NewDesc(prometheus.BuildFQName(namespace, deviceSubsystem, "temp_celsius"),
			"Latest temperature reading of a named temp channel", labels, nil),
		duty: prometheus.NewDesc(prometheus.BuildFQName(namespace, deviceSubsystem, "duty_percent"),
			"Latest duty readback of a channel", labels, nil),
		rpm: prometheus.NewDesc(prometheus.BuildFQName(namespace, deviceSubsystem, "rpm"),
			"Latest RPM readback of a channel", labels, nil),
		freq: prometheus.NewDesc(prometheus.BuildFQName(namespace, deviceSubsystem, "freq_hz"),
			"Latest frequency readback of a channel", labels, nil),
		watts: prometheus.NewDesc(prometheus.BuildFQName(namespace, deviceSubsystem, "watts"),
			"Latest power draw readback of a channel", labels, nil),
	}
}

func (c *DeviceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.temp
	ch <- c.duty
	ch <- c.rpm
	ch <- c.freq
	ch <- c.watts
}

func (c *DeviceCollector) Collect(ch chan<- prometheus.Metric) {
	for _, uid := range c.store.Known() {
		status, ok := c.store.Latest(uid)
		if !ok {
			continue
		}
		for _, t := range status.Temps {
			ch <- prometheus.MustNewConstMetric(c.temp, prometheus.GaugeValue, float64(t.Temp), string(uid), t.Name)
		}
		for _, ch2 := range status.Channels {
			if ch2.Duty != nil {
				ch <- prometheus.MustNewConstMetric(c.duty, prometheus.GaugeValue, float64(*ch2.Duty), string(uid), ch2.Name)
			}
			if ch2.Rpm != nil {
				ch <- prometheus.MustNewConstMetric(c.rpm, prometheus.GaugeValue, float64(*ch2.Rpm), string(uid), ch2.Name)
			}
			if ch2.Freq != nil {
				ch <- prometheus.MustNewConstMetric(c.freq, prometheus.GaugeValue, float64(*ch2.Freq), string(uid), ch2.Name)
			}
			if ch2.Watts != nil {
				ch <- prometheus.MustNewConstMetric(c.watts, prometheus.GaugeValue, float64(*ch2.Watts), string(uid), ch2.Name)
			}
		}
	}
}
