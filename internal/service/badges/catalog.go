package badges

import (
	"time"

	"github.com/oggyb/cunhao-core/internal/db"
)

// Stats are the aggregates every predicate is evaluated against. They are
// computed once per Check.
type Stats struct {
	Now         time.Time
	TotalUsage  int64
	ByAction    map[db.Action]int64
	LastHour    int64
	Authored    int64
	Platforms   int64
	GamesPlayed int64
	GameStreak  int64
}

// Badge is a catalog entry. A badge is earned when Current(stats) >= Target.
type Badge struct {
	Code   string
	Name   string
	Icon   string
	Target int64

	current func(Stats) int64
}

func (b Badge) Current(s Stats) int64 { return b.current(s) }

func (b Badge) Earned(s Stats) bool { return b.current(s) >= b.Target }

// pesaoWindow is the window of the "pesao" badge.
const pesaoWindow = time.Hour

// earlyBird is the madrugador window, 05:00 through the 07:30 minute.
func earlyBird(t time.Time) bool {
	h, m := t.Hour(), t.Minute()
	return (h >= 5 && h < 7) || (h == 7 && m <= 30)
}

// nightOwl is the trasnochador window, 02:00 to 04:59.
func nightOwl(t time.Time) bool {
	h := t.Hour()
	return h >= 2 && h < 5
}

func flag(ok bool) int64 {
	if ok {
		return 1
	}
	return 0
}

// The first six badges are the bot's historical set. multiplataforma, jugon
// and racha cover account linking and the mini-game.
var catalog = []Badge{
	{Code: "madrugador", Name: "El del primer café", Icon: "☕", Target: 1,
		current: func(s Stats) int64 { return flag(earlyBird(s.Now)) }},
	{Code: "trasnochador", Name: "Cerrando el bar", Icon: "🦉", Target: 1,
		current: func(s Stats) int64 { return flag(nightOwl(s.Now)) }},
	{Code: "fiera_total", Name: "Fiera Total", Icon: "🔥", Target: 50,
		current: func(s Stats) int64 { return s.TotalUsage }},
	{Code: "visionario", Name: "Visionario", Icon: "👁️", Target: 10,
		current: func(s Stats) int64 { return s.ByAction[db.ActionVision] }},
	{Code: "pesao", Name: "Pesao", Icon: "🍺", Target: 10,
		current: func(s Stats) int64 { return s.LastHour }},
	{Code: "poeta", Name: "Poeta", Icon: "✍️", Target: 5,
		current: func(s Stats) int64 { return s.Authored }},
	{Code: "multiplataforma", Name: "Multiplataforma", Icon: "🔗", Target: 2,
		current: func(s Stats) int64 { return s.Platforms }},
	{Code: "jugon", Name: "Jugón", Icon: "🎮", Target: 10,
		current: func(s Stats) int64 { return s.GamesPlayed }},
	{Code: "racha", Name: "Racha", Icon: "📅", Target: 7,
		current: func(s Stats) int64 { return s.GameStreak }},
}

// Catalog returns the badge catalog in display order.
func Catalog() []Badge { return append([]Badge(nil), catalog...) }

// Lookup finds a badge by code.
func Lookup(code string) (Badge, bool) {
	for _, b := range catalog {
		if b.Code == code {
			return b, true
		}
	}
	return Badge{}, false
}
