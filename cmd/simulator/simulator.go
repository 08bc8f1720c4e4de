package main

import (
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evinterop/beckn-ocpi-bridge/internal/domain"
)

// Simulator is an in-memory charging network backend. It serves the
// OCPI endpoints the bridge consumes, with sessions that accrue energy
// in real time and CDRs issued shortly after a session completes.
type Simulator struct {
	mu        sync.Mutex
	token     string
	powerKW   float64
	cdrDelay  time.Duration
	locations []domain.Location
	tariffs   []domain.Tariff
	sessions  map[string]*simSession
	log       *zap.Logger
}

type simSession struct {
	ID          string
	LocationID  string
	EvseUID     string
	ConnectorID string
	StartedAt   time.Time
	StoppedAt   time.Time
	Stopped     bool
}

func NewSimulator(token string, powerKW float64, cdrDelay time.Duration, log *zap.Logger) *Simulator {
	return &Simulator{
		token:     token,
		powerKW:   powerKW,
		cdrDelay:  cdrDelay,
		locations: fixtureLocations(),
		tariffs:   fixtureTariffs(),
		sessions:  make(map[string]*simSession),
		log:       log,
	}
}

type envelope struct {
	Data       interface{} `json:"data"`
	StatusCode int         `json:"status_code"`
	Timestamp  time.Time   `json:"timestamp"`
}

func ok(c *fiber.Ctx, data interface{}) error {
	return c.JSON(envelope{Data: data, StatusCode: 1000, Timestamp: time.Now().UTC()})
}

// Register mounts the OCPI module routes on the app.
func (s *Simulator) Register(app *fiber.App) {
	ocpi := app.Group("/ocpi/2.2.1", s.authRequired)
	ocpi.Get("/locations", s.handleLocations)
	ocpi.Get("/tariffs", s.handleTariffs)
	ocpi.Get("/sessions/:id", s.handleSession)
	ocpi.Get("/cdrs/:id", s.handleCDR)
	ocpi.Post("/commands/START_SESSION", s.handleStartSession)
	ocpi.Post("/commands/STOP_SESSION", s.handleStopSession)
}

func (s *Simulator) authRequired(c *fiber.Ctx) error {
	header := c.Get("Authorization")
	if !strings.HasPrefix(header, "Token ") || strings.TrimPrefix(header, "Token ") != s.token {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
	}
	return c.Next()
}

func (s *Simulator) handleLocations(c *fiber.Ctx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ok(c, s.locations)
}

func (s *Simulator) handleTariffs(c *fiber.Ctx) error {
	return ok(c, s.tariffs)
}

type startSessionRequest struct {
	Token       string `json:"token"`
	LocationID  string `json:"location_id"`
	EvseUID     string `json:"evse_uid"`
	ConnectorID string `json:"connector_id"`
}

func (s *Simulator) handleStartSession(c *fiber.Ctx) error {
	var req startSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	evse := s.findEVSE(req.LocationID, req.EvseUID, req.ConnectorID)
	if evse == nil {
		return ok(c, fiber.Map{"result": "REJECTED"})
	}
	if !evse.Status.AcceptsNewSessions() {
		return ok(c, fiber.Map{"result": "REJECTED"})
	}

	sess := &simSession{
		ID:          "SIM-" + uuid.New().String()[:8],
		LocationID:  req.LocationID,
		EvseUID:     req.EvseUID,
		ConnectorID: req.ConnectorID,
		StartedAt:   time.Now(),
	}
	s.sessions[sess.ID] = sess
	evse.Status = domain.EVSEStatusCharging

	s.log.Info("session started",
		zap.String("session_id", sess.ID),
		zap.String("location_id", req.LocationID),
		zap.String("evse_uid", req.EvseUID),
	)
	return ok(c, fiber.Map{"result": "ACCEPTED", "session_id": sess.ID})
}

type stopSessionRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Simulator) handleStopSession(c *fiber.Ctx) error {
	var req stopSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, found := s.sessions[req.SessionID]
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
	}
	if !sess.Stopped {
		sess.Stopped = true
		sess.StoppedAt = time.Now()
		if evse := s.findEVSE(sess.LocationID, sess.EvseUID, sess.ConnectorID); evse != nil {
			evse.Status = domain.EVSEStatusAvailable
		}
		s.log.Info("session stopped",
			zap.String("session_id", sess.ID),
			zap.Float64("kwh", s.energyOf(sess)),
		)
	}
	return ok(c, fiber.Map{"result": "ACCEPTED", "session_id": sess.ID})
}

func (s *Simulator) handleSession(c *fiber.Ctx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, found := s.sessions[c.Params("id")]
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
	}

	status := "ACTIVE"
	if sess.Stopped {
		status = "COMPLETED"
	}
	return ok(c, fiber.Map{
		"id":              sess.ID,
		"location_id":     sess.LocationID,
		"evse_uid":        sess.EvseUID,
		"connector_id":    sess.ConnectorID,
		"status":          status,
		"start_date_time": sess.StartedAt.UTC(),
		"kwh":             s.energyOf(sess),
		"last_updated":    time.Now().UTC(),
	})
}

func (s *Simulator) handleCDR(c *fiber.Ctx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, found := s.sessions[c.Params("id")]
	if !found || !sess.Stopped {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "cdr not issued"})
	}
	// CDRs trail session completion in real networks; simulate the lag.
	if time.Since(sess.StoppedAt) < s.cdrDelay {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "cdr not issued"})
	}
	return ok(c, s.buildCDR(sess))
}

func (s *Simulator) buildCDR(sess *simSession) domain.CDR {
	kwh := s.energyOf(sess)
	hours := sess.StoppedAt.Sub(sess.StartedAt).Hours()

	// Price against the first tariff; the fixtures attach it everywhere.
	var energyRate, vat float64
	if len(s.tariffs) > 0 {
		for _, el := range s.tariffs[0].Elements {
			for _, pc := range el.PriceComponents {
				if pc.Type == domain.DimensionEnergy {
					energyRate = pc.Price
					vat = pc.VAT
				}
			}
		}
	}

	energyExcl := round2(kwh * energyRate)
	energyIncl := round2(energyExcl * (1 + vat/100))

	return domain.CDR{
		CountryCode:     "IN",
		PartyID:         "SIM",
		ID:              "CDR-" + sess.ID,
		SessionID:       sess.ID,
		StartDateTime:   sess.StartedAt.UTC(),
		EndDateTime:     sess.StoppedAt.UTC(),
		AuthMethod:      "COMMAND",
		Currency:        "INR",
		TotalEnergy:     kwh,
		TotalEnergyCost: &domain.Price{ExclVAT: energyExcl, InclVAT: energyIncl},
		TotalTime:       hours,
		TotalCost:       &domain.Price{ExclVAT: energyExcl, InclVAT: energyIncl},
		LastUpdated:     time.Now().UTC(),
	}
}

func (s *Simulator) energyOf(sess *simSession) float64 {
	end := time.Now()
	if sess.Stopped {
		end = sess.StoppedAt
	}
	return round2(end.Sub(sess.StartedAt).Hours() * s.powerKW)
}

func (s *Simulator) findEVSE(locationID, evseUID, connectorID string) *domain.EVSE {
	for li := range s.locations {
		if s.locations[li].ID != locationID {
			continue
		}
		for ei := range s.locations[li].Evses {
			evse := &s.locations[li].Evses[ei]
			if evse.UID != evseUID {
				continue
			}
			for _, conn := range evse.Connectors {
				if conn.ID == connectorID {
					return evse
				}
			}
		}
	}
	return nil
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

func fixtureLocations() []domain.Location {
	now := time.Now().UTC()
	return []domain.Location{
		{
			CountryCode: "IN",
			PartyID:     "SIM",
			ID:          "LOC-SIM-001",
			Publish:     true,
			Name:        "Simulator Hub Central",
			Address:     "1 Test Street",
			City:        "Bengaluru",
			Country:     "IND",
			Coordinates: domain.GeoCoordinates{Latitude: "12.9716", Longitude: "77.5946"},
			Operator:    &domain.BusinessDetails{Name: "Simulator CPO"},
			Facilities:  []string{"CAFE", "PARKING_LOT"},
			Evses: []domain.EVSE{
				{
					UID:    "EVSE-SIM-1",
					EvseID: "IN*SIM*E1",
					Status: domain.EVSEStatusAvailable,
					Connectors: []domain.Connector{
						{
							ID:               "1",
							Standard:         "IEC_62196_T2_COMBO",
							Format:           "CABLE",
							PowerType:        "DC",
							MaxElectricPower: 60000,
							TariffIDs:        []string{"TARIFF-SIM-DC"},
							LastUpdated:      now,
						},
					},
					LastUpdated: now,
				},
				{
					UID:    "EVSE-SIM-2",
					EvseID: "IN*SIM*E2",
					Status: domain.EVSEStatusAvailable,
					Connectors: []domain.Connector{
						{
							ID:               "1",
							Standard:         "IEC_62196_T2",
							Format:           "SOCKET",
							PowerType:        "AC_3_PHASE",
							MaxElectricPower: 22000,
							TariffIDs:        []string{"TARIFF-SIM-DC"},
							LastUpdated:      now,
						},
					},
					LastUpdated: now,
				},
			},
			LastUpdated: now,
		},
	}
}

func fixtureTariffs() []domain.Tariff {
	return []domain.Tariff{
		{
			CountryCode: "IN",
			PartyID:     "SIM",
			ID:          "TARIFF-SIM-DC",
			Currency:    "INR",
			Elements: []domain.TariffElement{
				{
					PriceComponents: []domain.PriceComponent{
						{Type: domain.DimensionEnergy, Price: 18.00, VAT: 18, StepSize: 1},
					},
				},
			},
			LastUpdated: time.Now().UTC(),
		},
	}
}
