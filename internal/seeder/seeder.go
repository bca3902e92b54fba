package seeder

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/stratuswatch/detect-engine/internal/models"
)

// Scenario names accepted by Generate.
const (
	ScenarioUnsignedBinary = "unsigned_binary"
	ScenarioLoginSequence  = "login_sequence"
	ScenarioCPUDeviation   = "cpu_deviation"
	ScenarioExploitSignal  = "exploit_signal"
	ScenarioNoise          = "noise"
)

// Scenarios lists the supported event generation scenarios.
func Scenarios() []string {
	return []string{
		ScenarioUnsignedBinary,
		ScenarioLoginSequence,
		ScenarioCPUDeviation,
		ScenarioExploitSignal,
		ScenarioNoise,
	}
}

// Generator produces synthetic raw events for development and load testing.
type Generator struct {
	rng *rand.Rand
	now func() time.Time
}

// NewGenerator creates a Generator. A zero seed uses the current time.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gofakeit.Seed(seed)
	return &Generator{
		rng: rand.New(rand.NewSource(seed)),
		now: time.Now,
	}
}

// Generate produces count events for the named scenario. Sequence scenarios
// may emit more events than count since each occurrence spans several events.
func (g *Generator) Generate(scenario string, count int) ([]models.RawEvent, error) {
	events := make([]models.RawEvent, 0, count)
	for i := 0; i < count; i++ {
		assetID := fmt.Sprintf("host-%s", gofakeit.LetterN(6))
		identityID := gofakeit.Username()

		switch scenario {
		case ScenarioUnsignedBinary:
			events = append(events, g.unsignedBinary(assetID, identityID))
		case ScenarioLoginSequence:
			events = append(events, g.loginSequence(assetID, identityID)...)
		case ScenarioCPUDeviation:
			events = append(events, g.cpuDeviation(assetID, identityID))
		case ScenarioExploitSignal:
			events = append(events, g.exploitSignal(assetID, identityID))
		case ScenarioNoise:
			events = append(events, g.noise(assetID, identityID))
		default:
			return nil, fmt.Errorf("unknown scenario: %s", scenario)
		}
	}
	return events, nil
}

func (g *Generator) baseEvent(eventType, assetID, identityID string, at time.Time) models.RawEvent {
	return models.RawEvent{
		EventID:      uuid.New().String(),
		EventType:    eventType,
		AssetID:      assetID,
		IdentityID:   identityID,
		SourceSystem: "seeder",
		OccurredAt:   at.UTC().Format(time.RFC3339Nano),
		Attributes:   map[string]interface{}{},
	}
}

func (g *Generator) unsignedBinary(assetID, identityID string) models.RawEvent {
	event := g.baseEvent("process.execute", assetID, identityID, g.now())
	event.Attributes["image_path"] = fmt.Sprintf("C:\\Windows\\Temp\\%s.exe", gofakeit.LetterN(8))
	event.Attributes["unsigned"] = true
	event.ProcessLineage = &models.ProcessLineage{
		ProcessName:       gofakeit.AppName(),
		ParentProcessName: "explorer.exe",
	}
	return event
}

func (g *Generator) loginSequence(assetID, identityID string) []models.RawEvent {
	base := g.now().Add(-time.Duration(g.rng.Intn(300)) * time.Second)
	failures := 2 + g.rng.Intn(3)

	events := make([]models.RawEvent, 0, failures+1)
	for i := 0; i < failures; i++ {
		event := g.baseEvent("auth.login.failure", assetID, identityID, base.Add(time.Duration(i*10)*time.Second))
		event.Attributes["source_ip"] = gofakeit.IPv4Address()
		events = append(events, event)
	}

	success := g.baseEvent("auth.login.success", assetID, identityID, base.Add(time.Duration(failures*10+5)*time.Second))
	success.Attributes["source_ip"] = gofakeit.IPv4Address()
	success.Attributes["privileged"] = true
	return append(events, success)
}

func (g *Generator) cpuDeviation(assetID, identityID string) models.RawEvent {
	event := g.baseEvent("telemetry.cpu", assetID, identityID, g.now())
	event.Attributes["metric_name"] = "cpu_percent"
	event.Attributes["metric_value"] = 60.0 + g.rng.Float64()*40.0
	return event
}

func (g *Generator) exploitSignal(assetID, identityID string) models.RawEvent {
	event := g.baseEvent("process.suspicious", assetID, identityID, g.now())
	event.Attributes["suspicious_score"] = 0.6 + g.rng.Float64()*0.4
	event.ProcessLineage = &models.ProcessLineage{
		ProcessName:       "powershell.exe",
		ParentProcessName: "winword.exe",
	}
	return event
}

func (g *Generator) noise(assetID, identityID string) models.RawEvent {
	types := []string{"auth.login.success", "process.execute", "network.connect", "file.read"}
	event := g.baseEvent(types[g.rng.Intn(len(types))], assetID, identityID, g.now())
	event.Attributes["source_ip"] = gofakeit.IPv4Address()
	if event.EventType == "network.connect" {
		event.NetworkFlow = &models.NetworkFlow{
			Destination: gofakeit.IPv4Address(),
			Port:        g.rng.Intn(65535-1024) + 1024,
			Protocol:    "tcp",
		}
	}
	return event
}

// Batches splits events into batches of at most batchSize, preserving order.
func Batches(events []models.RawEvent, batchSize int) [][]models.RawEvent {
	if batchSize <= 0 {
		batchSize = 100
	}
	var batches [][]models.RawEvent
	for start := 0; start < len(events); start += batchSize {
		end := start + batchSize
		if end > len(events) {
			end = len(events)
		}
		batches = append(batches, events[start:end])
	}
	return batches
}
