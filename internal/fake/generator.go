package fake

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/sampquery/internal/models"
)

// NodeStore receives generated nodes. *storage.Repository implements it.
type NodeStore interface {
	UpsertNode(n models.Node) error
}

// GenerateData populates store with count randomized node records spread over
// the last 30 days, reusing some addresses and re-registering some nodes.
func GenerateData(store NodeStore, count int) int {
	gamemodes := []string{"Freeroam", "Roleplay", "DM", "TDM", "Race", "Stunt", "Cops and Robbers", "Zombie"}
	languages := []string{"English", "Русский", "Español", "Português", "Polski", "Deutsch", "Türkçe"}
	versions := []string{"0.3.7-R2", "0.3.7-R4", "0.3.DL-R1", "omp 1.1.0"}
	a2sGames := []string{"Counter-Strike 2", "DayZ", "Rust", "Garry's Mod"}

	// Countries list
	countriesHigh := []string{"RU", "UA", "BR", "US", "PL", "TR", "DE", "RO", "KZ", "BY", "ID"}
	countriesMid := []string{"ES", "GB", "FR", "NL", "LT", "LV", "BG", "RS", "AR", "MX", "VN"}
	countriesLow := []string{"CA", "AU", "IT", "SE", "JP", "CZ", "HU", "PT", "IN", "CL", "FI"}

	// Cache for ip reuse
	type cachedIP struct {
		Address string
		Country string
	}
	var ipHistory []cachedIP

	written := 0
	for range count {
		// Random date-time in 30 days range
		seenTime := time.Now().Add(-time.Duration(rand.IntN(30)) * 24 * time.Hour).
			Add(-time.Duration(rand.IntN(1440)) * time.Minute)

		var ip, country string

		// 20% chance for reuse IP address
		if len(ipHistory) > 0 && rand.Float32() < 0.2 {
			cached := ipHistory[rand.IntN(len(ipHistory))]
			ip = cached.Address
			country = cached.Country
		} else {
			ip = fmt.Sprintf("%d.%d.%d.%d", rand.IntN(220)+1, rand.IntN(255), rand.IntN(255), rand.IntN(255))

			roll := rand.Float32()
			switch {
			case roll < 0.70:
				country = countriesHigh[rand.IntN(len(countriesHigh))]
			case roll < 0.90:
				country = countriesMid[rand.IntN(len(countriesMid))]
			default:
				country = countriesLow[rand.IntN(len(countriesLow))]
			}

			ipHistory = append(ipHistory, cachedIP{Address: ip, Country: country})
		}

		node := models.Node{
			Type:        models.TypeSAMP,
			IP:          ip,
			Port:        7777 + rand.IntN(10),
			CountryCode: country,
			FirstSeen:   seenTime.Add(-time.Hour * 24 * 7),
			LastSeen:    seenTime,
		}

		roll := rand.Float32()
		switch {
		case roll < 0.10:
			// Never answered
		case roll < 0.20:
			node.Type = models.TypeA2S
			node.Port = 27015 + rand.IntN(10)
			node.Hostname = fmt.Sprintf("Source Server #%d", rand.IntN(1000))
			node.Gamemode = a2sGames[rand.IntN(len(a2sGames))]
			node.MaxPlayers = 32
			node.Players = rand.IntN(33)
			node.Ping = int64(10 + rand.IntN(150))
		default:
			node.Hostname = fmt.Sprintf("SA-MP Server #%d [%s]", rand.IntN(1000), country)
			node.Gamemode = gamemodes[rand.IntN(len(gamemodes))]
			node.Language = languages[rand.IntN(len(languages))]
			node.Version = versions[rand.IntN(len(versions))]
			node.MaxPlayers = []int{50, 100, 500, 1000}[rand.IntN(4)]
			node.Players = rand.IntN(node.MaxPlayers + 1)
			node.Passworded = rand.Float32() < 0.05
			node.Ping = int64(10 + rand.IntN(150))
		}

		if err := store.UpsertNode(node); err != nil {
			log.Warn().Err(err).Msg("Failed to generate fake node")
			continue
		}
		written++

		if rand.Float32() < 0.3 { // 30% chance re-registration
			_ = store.UpsertNode(node)
			_ = store.UpsertNode(node)
		}
	}

	log.Info().Int("count", written).Msg("Fake nodes generated")

	return written
}
