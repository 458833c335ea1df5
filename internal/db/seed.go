package db

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oggyb/cunhao-core/internal/utils/textnorm"
)

var (
	seedShort = []string{"figura", "máquina", "crack", "campeón", "fiera", "artista", "jefe", "titán"}
	seedLong  = []string{
		"Esto con Carmena no pasaba",
		"Eso lo arreglo yo en dos tardes",
		"Yo es que soy muy de la tierra",
		"Como en casa no se come en ningún sitio",
	}
)

// SeedTestData resets the database and populates it with demo data.
//
// Behavior:
//  1. Clears every table owned by the core.
//  2. Creates 6 Telegram users (the first 3 act as curators) and links user 6
//     to a Slack alias.
//  3. Seeds the phrase catalog, two open proposals and ~100 usage records.
//
// Compatible with MySQL, Postgres and SQLite.
func SeedTestData(db *gorm.DB, log *slog.Logger) error {
	r := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	now := time.Now().UTC()

	// --- Fresh start ---
	for _, m := range []any{&UsageRecord{}, &Proposal{}, &Phrase{}, &LinkRequest{}, &Alias{}, &User{}} {
		if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
			return fmt.Errorf("failed to clear %T: %w", m, err)
		}
	}
	log.Info("cleared existing data")

	// --- Users ---
	users := make([]User, 0, 6)
	for i := 1; i <= 6; i++ {
		u := User{
			DisplayName: fmt.Sprintf("cuñao%d", i),
			Platform:    PlatformTelegram,
			Badges:      datatypes.JSONSlice[string]{},
			LastSeenAt:  now.Add(-time.Duration(r.IntN(500)) * time.Hour),
		}
		if err := db.Create(&u).Error; err != nil {
			return fmt.Errorf("failed to seed user: %w", err)
		}
		alias := Alias{Platform: PlatformTelegram, PlatformUserID: strconv.Itoa(1000 + i), MasterUserID: u.ID, LinkedAt: now}
		if err := db.Create(&alias).Error; err != nil {
			return fmt.Errorf("failed to seed alias: %w", err)
		}
		users = append(users, u)
	}
	slack := Alias{Platform: PlatformSlack, PlatformUserID: "U0SEED", MasterUserID: users[5].ID, LinkedAt: now}
	if err := db.Create(&slack).Error; err != nil {
		return fmt.Errorf("failed to seed alias: %w", err)
	}
	log.Info("seeded users", "count", len(users), "curators", "telegram:1001,telegram:1002,telegram:1003")

	// --- Phrases ---
	seedKind := func(kind Kind, texts []string) error {
		for _, text := range texts {
			author := users[r.IntN(len(users))].ID
			p := Phrase{Kind: kind, Text: text, Normalized: textnorm.Normalize(text), AuthorUserID: &author, UsageCount: int64(r.IntN(50))}
			if err := db.Create(&p).Error; err != nil {
				return fmt.Errorf("failed to seed phrase: %w", err)
			}
		}
		return nil
	}
	if err := seedKind(KindShort, seedShort); err != nil {
		return err
	}
	if err := seedKind(KindLong, seedLong); err != nil {
		return err
	}

	// --- Open proposals ---
	for i, text := range []string{"fenómeno", "Antes esto era todo campo"} {
		kind := KindShort
		if i == 1 {
			kind = KindLong
		}
		p := Proposal{
			ID:                 fmt.Sprintf("00000000-0000-4000-8000-%012d", i+1),
			Kind:               kind,
			Text:               text,
			Normalized:         textnorm.Normalize(text),
			SubmitterUserID:    users[3+i].ID,
			SubmitterPlatform:  PlatformTelegram,
			SubmitterChatID:    "-1000",
			SubmitterMessageID: strconv.Itoa(i + 1),
			LikedBy:            datatypes.JSONSlice[uint64]{users[0].ID},
			DislikedBy:         datatypes.JSONSlice[uint64]{},
			Status:             StatusOpen,
			CreatedAt:          now.Add(-time.Duration(i+1) * 24 * time.Hour),
		}
		if err := db.Create(&p).Error; err != nil {
			return fmt.Errorf("failed to seed proposal: %w", err)
		}
	}

	// --- Usage ---
	records := make([]UsageRecord, 0, 100)
	for range 100 {
		u := users[r.IntN(len(users))]
		action := actions[r.IntN(len(actions))]
		rec := UsageRecord{
			MasterUserID: u.ID,
			Platform:     PlatformTelegram,
			Action:       action,
			RecordedAt:   now.Add(-time.Duration(r.IntN(72*60)) * time.Minute),
		}
		if action == ActionPhrase {
			id := PhraseID(KindShort, seedShort[r.IntN(len(seedShort))])
			rec.PhraseID = &id
		}
		records = append(records, rec)
	}
	if err := db.CreateInBatches(&records, 50).Error; err != nil {
		return fmt.Errorf("failed to seed usage: %w", err)
	}

	log.Info("seeded catalog", "phrases", len(seedShort)+len(seedLong), "proposals", 2, "usage_records", len(records))
	return nil
}
