package downloader

import (
	"path/filepath"
	"sort"
	"strings"
)

// consoleMap translates common collection folder names to the vault's system
// codes.
var consoleMap = map[string]string{
	"DS":           "DS",
	"NDS":          "DS",
	"NES":          "NES",
	"SNES":         "SNES",
	"N64":          "N64",
	"GC":           "GameCube",
	"GAMECUBE":     "GameCube",
	"WII":          "Wii",
	"WIIWARE":      "WiiWare",
	"GB":           "GB",
	"GAMEBOY":      "GB",
	"GBC":          "GBC",
	"GBA":          "GBA",
	"PS1":          "PS1",
	"PSX":          "PS1",
	"PLAYSTATION":  "PS1",
	"PS2":          "PS2",
	"PS3":          "PS3",
	"PSP":          "PSP",
	"GENESIS":      "Genesis",
	"MEGADRIVE":    "Genesis",
	"SMS":          "SMS",
	"MASTERSYSTEM": "SMS",
	"SATURN":       "Saturn",
	"DREAMCAST":    "Dreamcast",
	"DC":           "Dreamcast",
	"XBOX":         "Xbox",
	"ATARI2600":    "Atari2600",
	"ATARI7800":    "Atari7800",
}

// DetectConsole derives the system code from a folder name, trying an exact
// match before substring matches (so "Nintendo DS" still resolves to DS).
func DetectConsole(folder string) (string, bool) {
	name := strings.ToUpper(filepath.Base(filepath.Clean(folder)))
	if system, ok := consoleMap[name]; ok {
		return system, true
	}
	// Longest keys first keeps substring matching deterministic ("GAMEBOY"
	// wins over "GB").
	keys := make([]string, 0, len(consoleMap))
	for key := range consoleMap {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	for _, key := range keys {
		if strings.Contains(name, key) {
			return consoleMap[key], true
		}
	}
	return "", false
}
