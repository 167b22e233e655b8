package store

import (
	"time"

	"TrafficSentry/internal/config"
	"TrafficSentry/internal/factory"
	"TrafficSentry/internal/model"
)

func init() {
	factory.RegisterWriter("gob", func(def config.WriterDef, interval time.Duration) (model.Writer, error) {
		return NewGobWriter(def.Gob.RootPath, interval), nil
	})
	factory.RegisterWriter("clickhouse", func(def config.WriterDef, interval time.Duration) (model.Writer, error) {
		w, err := NewClickHouseWriter(def.ClickHouse, interval)
		if err != nil {
			return nil, err
		}
		return w, nil
	})
}
