package websocket

import (
	"github.com/rs/zerolog"

	"github.com/opsboard/opsboard/internal/domain/ops"
	"github.com/opsboard/opsboard/internal/live"
)

// Bridge registers observers on the syncer that broadcast every state
// replacement to subscribed clients: each collection on its own topic, the
// derived KPI on "kpi", and refreshed insight cards on "insights" whenever
// one of their input collections changes. Must run before the syncer starts.
func Bridge(s *live.Syncer, hub *Hub, log zerolog.Logger) {
	log = log.With().Str("component", "ws-bridge").Logger()

	payload := func(collection string) any {
		switch collection {
		case ops.ColPatients:
			return s.Patients()
		case ops.ColRecords:
			return s.Records()
		case ops.ColStaff:
			return s.Staff()
		case ops.ColResources:
			return s.Resources()
		case ops.ColAlerts:
			return s.Alerts()
		}
		return nil
	}

	for _, col := range ops.Collections {
		s.OnCollection(col, func(collection string) {
			ev, err := NewEvent(EventSnapshot, collection, payload(collection))
			if err != nil {
				log.Error().Err(err).Str("collection", collection).Msg("encode snapshot event")
				return
			}
			hub.Broadcast(ev)

			switch collection {
			case ops.ColPatients, ops.ColStaff, ops.ColResources:
				iev, err := NewEvent(EventInsights, TopicInsights, s.Insights())
				if err != nil {
					log.Error().Err(err).Msg("encode insights event")
					return
				}
				hub.Broadcast(iev)
			}
		})
	}

	s.OnKPI(func(kpi ops.DashboardKPI) {
		ev, err := NewEvent(EventKPI, TopicKPI, kpi)
		if err != nil {
			log.Error().Err(err).Msg("encode kpi event")
			return
		}
		hub.Broadcast(ev)
	})
}
