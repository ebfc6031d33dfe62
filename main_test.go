package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"rnav-scraper/correction"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvinceByChoice(t *testing.T) {
	tests := []struct {
		answer string
		want   string
		ok     bool
	}{
		{"0", "", true},
		{"1", "Buenos Aires", true},
		{"3", "Chaco", true},
		{"23", "Tucumán", true},
		{"24", "", false},
		{"-1", "", false},
		{"chaco", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			got, ok := provinceByChoice(tt.answer)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChooseProvinceRetriesInvalidAnswers(t *testing.T) {
	var out bytes.Buffer
	p := correction.NewTerminalPrompter(strings.NewReader("99\nabc\n3\n"), &out)

	got, err := chooseProvince(p, &out)
	require.NoError(t, err)
	assert.Equal(t, "Chaco", got)
	assert.Equal(t, 2, strings.Count(out.String(), "Opción inválida"))
	assert.Contains(t, out.String(), " 0. Salir")
}

func TestChooseProvinceQuit(t *testing.T) {
	for _, input := range []string{"0\n", ""} {
		var out bytes.Buffer
		p := correction.NewTerminalPrompter(strings.NewReader(input), &out)

		got, err := chooseProvince(p, &out)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
}

func TestProvincesCommand(t *testing.T) {
	out, err := execute(t, "", "provinces")
	require.NoError(t, err)
	assert.Contains(t, out, " 1. Buenos Aires\n")
	assert.Contains(t, out, "23. Tucumán\n")
	assert.NotContains(t, out, "Salir")
}

func TestHotelsListCommand(t *testing.T) {
	out, err := execute(t, "", "hotels", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, " 7. Jujuy\n")
	assert.Contains(t, out, "99. Más Hoteles Asociados\n")
}

func TestHotelsUnknownFilial(t *testing.T) {
	_, err := execute(t, "", "hotels", "--filial", "5")
	assert.ErrorContains(t, err, "unknown filial 5")
}

func TestBaseAppSkipsConfiguredStores(t *testing.T) {
	cfg := writeConfig(t, t.TempDir())
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1")
	configPath = cfg
	t.Cleanup(func() { configPath = "config.yaml" })

	a, err := newBaseApp()
	require.NoError(t, err)
	defer a.Close()

	assert.True(t, a.cfg.Database.Enabled)
	assert.Nil(t, a.db)
	assert.Nil(t, a.sink)
	assert.Nil(t, a.metrics)
}

func TestCorrectRequiresDatabase(t *testing.T) {
	cfg := writeConfig(t, t.TempDir())
	_, err := execute(t, "", "--config", cfg, "correct", "Chaco")
	assert.ErrorContains(t, err, "database")
}

func TestScrapeReplay(t *testing.T) {
	outDir := t.TempDir()
	cfg := writeConfig(t, outDir)

	replayDir := t.TempDir()
	pages := []string{
		listing(`<button dusk="nextPage.after">Siguiente</button>`,
			card("Viajes Chaco", "362 1", "viajes(at)gmail", "Resistencia"),
			card("Norte Tur", "362 2", "consultar", "Charata"),
		),
		listing(`<button dusk="nextPage.after" disabled>Siguiente</button>`,
			card("Viajes Chaco", "362 1", "viajes(at)gmail", "Resistencia"),
			card("Impenetrable", "", "info@impenetrable.com.ar", "Castelli"),
		),
	}
	for i, html := range pages {
		name := filepath.Join(replayDir, []string{"01.html", "02.html"}[i])
		require.NoError(t, os.WriteFile(name, []byte(html), 0644))
	}

	out, err := execute(t, "", "--config", cfg, "scrape", "Chaco", "--replay", replayDir, "--correct=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Chaco: 3 records, 2 pages, 1 invalid emails unresolved")
	assert.Contains(t, out, "Total: 3 records, 1 invalid emails unresolved")

	data, err := os.ReadFile(filepath.Join(outDir, "chaco_agencias_viaje.csv"))
	require.NoError(t, err)
	csv := string(data)
	assert.Contains(t, csv, "viajes@gmail.com")
	assert.Contains(t, csv, "Impenetrable")
	assert.Equal(t, 1, strings.Count(csv, "Viajes Chaco"))
}

func TestScrapeMenuQuit(t *testing.T) {
	cfg := writeConfig(t, t.TempDir())
	out, err := execute(t, "0\n", "--config", cfg, "scrape")
	require.NoError(t, err)
	assert.Contains(t, out, "Seleccione una provincia")
	assert.NotContains(t, out, "Total:")
}

// execute runs the root command with the given stdin and returns stdout
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	clearEnv(t)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	return out.String(), err
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"DATABASE_URL", "GOOGLE_SHEETS_CREDENTIALS", "BOT_DATA_DIR", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID"} {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, outDir string) string {
	t.Helper()
	yaml := `scraper:
  url: "https://directory.test/#buscador"
  navigation_timeout: 1s
  wait_timeout: 1s
  search_settle: 0s
  modal_settle: 0s
  page_settle: 0s
output:
  dir: "` + outDir + `"
  replace_existing: true
batch:
  retry_attempts: 1
  retry_initial: 10ms
  run_interval: 0s
hotels:
  output_dir: "` + outDir + `"
log:
  env: production
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))
	return path
}

func card(name, phone, email, locality string) string {
	return `<div class="card"><div class="head"><h3 class="text-lg">` + name + `</h3></div>` +
		`<p class="leading-relaxed text-sm">Teléfono: ` + phone + `</p>` +
		`<p class="leading-relaxed text-sm">Correo electrónico: ` + email + `</p>` +
		`<p class="leading-relaxed text-sm">Localidad: ` + locality + `</p></div>`
}

func listing(next string, cards ...string) string {
	return `<html><body><input placeholder="Ciudad o Provincia"><section>` +
		strings.Join(cards, "") + `</section>` + next + `</body></html>`
}
