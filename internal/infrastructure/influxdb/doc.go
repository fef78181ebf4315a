// Package influxdb writes auth decisions to InfluxDB as a time series.
//
// Each session issue, access check and reset step becomes one point in the
// configured measurement (auth_events by default), tagged by kind, outcome,
// reason and site, so dashboards can chart login failures or denial spikes.
// Usernames are written as a field only while record_subjects is on.
//
// The SQLite audit trail remains the record of truth; this stream is best
// effort.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WriteAuthEvent(influxdb.AuthEvent{Kind: "session.issue", Outcome: "failure", Subject: "alice"})
//
// Writes are non-blocking and batched per batch_size and flush_interval.
package influxdb
