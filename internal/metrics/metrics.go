package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gamesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memorytrip_online_games_created_total",
		Help: "Total number of online games created.",
	})

	playersJoined = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memorytrip_online_players_joined_total",
		Help: "Total number of players that joined an online game after creation.",
	})

	turnsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memorytrip_turns_resolved_total",
			Help: "Total number of turns resolved by the game server, by outcome.",
		},
		[]string{"outcome"},
	)

	gamesFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memorytrip_games_finished_total",
			Help: "Total number of online games that ended, by reason.",
		},
		[]string{"reason"},
	)

	aiRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memorytrip_ai_requests_total",
			Help: "Total number of AI backed calls by call and status.",
		},
		[]string{"call", "status"},
	)

	activeRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "memorytrip_rooms",
		Help: "Number of online game rooms currently held in memory.",
	})

	tripsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "memorytrip_trips_saved_total",
		Help: "Total number of finished trips saved to the gallery.",
	})
)

func GameCreated()  { gamesCreated.Inc() }
func PlayerJoined() { playersJoined.Inc() }
func TripSaved()    { tripsSaved.Inc() }

// TurnResolved records a server-side turn: "ok", "memory_failed" or "error".
func TurnResolved(outcome string) { turnsResolved.WithLabelValues(outcome).Inc() }

// GameFinished records why an online game ended: "memory" or "timeout".
func GameFinished(reason string) { gamesFinished.WithLabelValues(reason).Inc() }

func AIRequest(call string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	aiRequests.WithLabelValues(call, status).Inc()
}

func SetRooms(n int) { activeRooms.Set(float64(n)) }
