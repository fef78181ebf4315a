package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// AuthEvent is one auth decision as written to the time series.
type AuthEvent struct {
	Kind      string
	Outcome   string
	Subject   string
	Reason    string
	Operation string
	At        time.Time
}

// WriteAuthEvent queues e. Events after Close are counted as dropped.
func (c *Client) WriteAuthEvent(e AuthEvent) {
	if !c.IsConnected() {
		c.dropped.Add(1)
		return
	}
	c.writeAPI.WritePoint(c.point(e))
	c.written.Add(1)
}

// point builds the line for e. Kind, outcome and reason are tags since they
// come from closed sets; subject and operation stay fields to keep series
// cardinality bounded.
func (c *Client) point(e AuthEvent) *write.Point {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}

	tags := map[string]string{"kind": e.Kind, "outcome": e.Outcome}
	if e.Reason != "" {
		tags["reason"] = e.Reason
	}

	fields := map[string]any{"count": 1}
	if c.recordSubjects && e.Subject != "" {
		fields["subject"] = e.Subject
	}
	if e.Operation != "" {
		fields["operation"] = e.Operation
	}

	return write.NewPoint(c.measurement, tags, fields, at)
}
