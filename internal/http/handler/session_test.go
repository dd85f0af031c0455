package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ppiankov/claimdesk/internal/backend"
	"github.com/ppiankov/claimdesk/internal/http/handler"
	"github.com/ppiankov/claimdesk/internal/http/router"
	"github.com/ppiankov/claimdesk/internal/model"
	"github.com/ppiankov/claimdesk/internal/wizard"
	"github.com/ppiankov/claimdesk/internal/worker"
)

type envelope struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

type sessionBody struct {
	Session struct {
		ID          string `json:"id"`
		CurrentStep string `json:"current_step"`
		AllResolved bool   `json:"all_resolved"`
		Files       []struct {
			Key string `json:"key"`
		} `json:"files"`
		Facts []struct {
			ExtractedFact   string `json:"extracted_fact"`
			NormalizedValue string `json:"normalized_value"`
		} `json:"facts"`
		Conflicts []struct {
			Resolved bool `json:"resolved"`
		} `json:"conflicts"`
		Timeline *struct {
			Events []struct {
				EventNumber int    `json:"event_number"`
				Description string `json:"description"`
			} `json:"timeline"`
		} `json:"timeline"`
		Escalated bool `json:"escalated"`
	} `json:"session"`
}

// streamRecorder satisfies http.CloseNotifier, which gin's Stream requires.
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *streamRecorder) CloseNotify() <-chan bool {
	return r.closed
}

func conflictedExtraction() *model.ExtractionResult {
	return &model.ExtractionResult{
		Facts: []model.Fact{
			{ExtractedFact: "Collision at 3:00 PM", NormalizedValue: "3:00 PM", Source: "claimant"},
			{ExtractedFact: "Collision at 3:30 PM", NormalizedValue: "3:30 PM", Source: "police"},
		},
		Conflicts: []model.Conflict{{
			FactDescription:   "Time of collision",
			Sources:           []string{"claimant", "police"},
			ConflictingValues: []string{"3:00 PM", "3:30 PM"},
		}},
	}
}

var _ = Describe("SessionHandler", func() {
	var (
		engine   *gin.Engine
		be       *mockBackend
		registry *wizard.Registry
	)

	do := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			Expect(json.NewEncoder(&buf).Encode(body)).To(Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w
	}

	upload := func(id, name, content string, fields map[string]string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", name)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write([]byte(content))
		Expect(err).NotTo(HaveOccurred())
		for k, v := range fields {
			Expect(mw.WriteField(k, v)).To(Succeed())
		}
		Expect(mw.Close()).To(Succeed())

		req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/files", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w
	}

	decodeSession := func(w *httptest.ResponseRecorder) sessionBody {
		var body sessionBody
		Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
		return body
	}

	decodeError := func(w *httptest.ResponseRecorder) envelope {
		var env envelope
		Expect(json.Unmarshal(w.Body.Bytes(), &env)).To(Succeed())
		return env
	}

	create := func() string {
		w := do(http.MethodPost, "/api/sessions", nil)
		Expect(w.Code).To(Equal(http.StatusCreated))
		return decodeSession(w).Session.ID
	}

	// session with an uploaded police report, moved to the fact matrix
	extracted := func() string {
		id := create()
		Expect(upload(id, "police_report.txt", "Collision at 3:30 PM", nil).Code).To(Equal(http.StatusCreated))
		Expect(do(http.MethodPost, "/api/sessions/"+id+"/next", nil).Code).To(Equal(http.StatusOK))
		return id
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		be = &mockBackend{}
		registry = wizard.NewRegistry(0, func(id string) *wizard.Controller {
			return wizard.NewController(id, be, wizard.Options{
				Schedule: func(time.Duration, func()) {},
			})
		})
		h := handler.NewSessionHandler(registry, 64, nil)
		engine = gin.New()
		router.SetupRoutes(engine, h, router.RouterConfig{})
	})

	Describe("Health", func() {
		It("reports open sessions", func() {
			create()
			w := do(http.MethodGet, "/health", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring(`"sessions":1`))
		})
	})

	Describe("Create and Get", func() {
		It("starts a session on the files step", func() {
			id := create()
			w := do(http.MethodGet, "/api/sessions/"+id, nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(decodeSession(w).Session.CurrentStep).To(Equal("files"))
		})

		It("returns 404 for an unknown session", func() {
			w := do(http.MethodGet, "/api/sessions/nope", nil)
			Expect(w.Code).To(Equal(http.StatusNotFound))
			Expect(decodeError(w).Error.Code).To(Equal("not_found"))
		})

		It("deletes a session", func() {
			id := create()
			Expect(do(http.MethodDelete, "/api/sessions/"+id, nil).Code).To(Equal(http.StatusNoContent))
			Expect(do(http.MethodGet, "/api/sessions/"+id, nil).Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("UploadFile", func() {
		It("parses a text document into its expected slot", func() {
			id := create()
			w := upload(id, "police_report.txt", "Officer notes", nil)
			Expect(w.Code).To(Equal(http.StatusCreated))
			body := decodeSession(w)
			Expect(body.Session.Files).To(HaveLen(1))
			Expect(body.Session.Files[0].Key).To(Equal("police_report.pdf"))
		})

		It("pins the file to a slot chosen by the client", func() {
			id := create()
			w := upload(id, "notes.txt", "Officer notes", map[string]string{"expected_file_name": "fnol.pdf"})
			Expect(w.Code).To(Equal(http.StatusCreated))
			Expect(decodeSession(w).Session.Files[0].Key).To(Equal("fnol.pdf"))
		})

		It("rejects an unknown slot", func() {
			id := create()
			w := upload(id, "notes.txt", "Officer notes", map[string]string{"expected_file_name": "diary.pdf"})
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects unsupported file types", func() {
			id := create()
			w := upload(id, "scan.pdf", "%PDF-1.7", nil)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(decodeError(w).Error.Code).To(Equal(wizard.CodeInvalidFile))
		})

		It("rejects files over the size limit", func() {
			id := create()
			w := upload(id, "police_report.txt", strings.Repeat("x", 100), nil)
			Expect(w.Code).To(Equal(http.StatusRequestEntityTooLarge))
		})

		It("rejects a request without a file", func() {
			id := create()
			req := httptest.NewRequest(http.MethodPost, "/api/sessions/"+id+"/files", strings.NewReader("plain"))
			req.Header.Set("Content-Type", "text/plain")
			w := httptest.NewRecorder()
			engine.ServeHTTP(w, req)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})

		It("accepts an already parsed document as JSON", func() {
			id := create()
			doc := model.UploadedFile{
				Type:     model.FileTypePDF,
				Filename: "fnol.pdf",
				Pages:    []model.Page{{PageNumber: 1, Text: "x"}},
			}
			w := do(http.MethodPost, "/api/sessions/"+id+"/files", doc)
			Expect(w.Code).To(Equal(http.StatusCreated))
			Expect(decodeSession(w).Session.Files[0].Key).To(Equal("fnol.pdf"))
		})

		It("rejects a parsed document whose content exceeds the upload limit", func() {
			id := create()
			doc := model.UploadedFile{
				Type:     model.FileTypePDF,
				Filename: "fnol.pdf",
				Pages: []model.Page{
					{PageNumber: 1, Text: strings.Repeat("x", 40)},
					{PageNumber: 2, Text: "y", Images: []model.PageImage{{Index: 0, Data: strings.Repeat("z", 40)}}},
				},
			}
			w := do(http.MethodPost, "/api/sessions/"+id+"/files", doc)
			Expect(w.Code).To(Equal(http.StatusRequestEntityTooLarge))
		})
	})

	Describe("Navigation", func() {
		It("refuses to extract without files", func() {
			id := create()
			w := do(http.MethodPost, "/api/sessions/"+id+"/next", nil)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(decodeError(w).Error.Code).To(Equal(wizard.CodeNoFiles))
		})

		It("extracts facts when leaving the files step", func() {
			be.extractFn = func(context.Context, []model.UploadedFile) (*model.ExtractionResult, error) {
				return conflictedExtraction(), nil
			}
			id := create()
			Expect(upload(id, "police_report.txt", "Collision", nil).Code).To(Equal(http.StatusCreated))

			w := do(http.MethodPost, "/api/sessions/"+id+"/next", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			body := decodeSession(w)
			Expect(body.Session.CurrentStep).To(Equal("fact-matrix"))
			Expect(body.Session.Facts).To(HaveLen(2))
			Expect(body.Session.Conflicts).To(HaveLen(1))
			Expect(body.Session.AllResolved).To(BeFalse())
		})

		It("returns 502 with the backend message when extraction fails", func() {
			be.extractFn = func(context.Context, []model.UploadedFile) (*model.ExtractionResult, error) {
				return nil, &backend.ExternalCallError{Endpoint: "/extract-facts", StatusCode: 500, Message: "Document could not be read"}
			}
			id := create()
			Expect(upload(id, "police_report.txt", "Collision", nil).Code).To(Equal(http.StatusCreated))

			w := do(http.MethodPost, "/api/sessions/"+id+"/next", nil)
			Expect(w.Code).To(Equal(http.StatusBadGateway))
			Expect(decodeError(w).Error.Message).To(Equal("Document could not be read"))

			Expect(decodeSession(do(http.MethodGet, "/api/sessions/"+id, nil)).Session.CurrentStep).To(Equal("files"))
		})

		It("blocks the timeline while conflicts are open", func() {
			be.extractFn = func(context.Context, []model.UploadedFile) (*model.ExtractionResult, error) {
				return conflictedExtraction(), nil
			}
			id := extracted()

			w := do(http.MethodPost, "/api/sessions/"+id+"/next", nil)
			Expect(w.Code).To(Equal(http.StatusConflict))
			Expect(decodeError(w).Error.Code).To(Equal(wizard.CodeUnresolvedConflicts))

			w = do(http.MethodPost, "/api/sessions/"+id+"/steps/timeline", nil)
			Expect(w.Code).To(Equal(http.StatusConflict))
		})

		It("rejects unknown steps", func() {
			id := create()
			w := do(http.MethodPost, "/api/sessions/"+id+"/steps/summary", nil)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(decodeError(w).Error.Code).To(Equal(wizard.CodeUnknownStep))
		})

		It("names the unknown step and leaves the session where it was", func() {
			id := create()
			w := do(http.MethodPost, "/api/sessions/"+id+"/steps/Timeline", nil)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(decodeError(w).Error.Message).To(ContainSubstring(`"Timeline"`))

			w = do(http.MethodGet, "/api/sessions/"+id, nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(decodeSession(w).Session.CurrentStep).To(Equal(string(model.StepFiles)))
		})

		It("refuses to go back from the first step", func() {
			id := create()
			w := do(http.MethodPost, "/api/sessions/"+id+"/previous", nil)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("AcceptConflict", func() {
		BeforeEach(func() {
			be.extractFn = func(context.Context, []model.UploadedFile) (*model.ExtractionResult, error) {
				return conflictedExtraction(), nil
			}
		})

		It("applies the accepted value to the facts", func() {
			id := extracted()
			w := do(http.MethodPost, "/api/sessions/"+id+"/conflicts/0/accept", map[string]any{"variant_index": 1, "value": "3:30 PM"})
			Expect(w.Code).To(Equal(http.StatusOK))

			var body struct {
				Result struct {
					ResolvedAll  bool  `json:"resolved_all"`
					UpdatedFacts []int `json:"updated_facts"`
				} `json:"result"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Result.ResolvedAll).To(BeTrue())
			Expect(body.Result.UpdatedFacts).To(Equal([]int{0}))

			view := decodeSession(do(http.MethodGet, "/api/sessions/"+id, nil)).Session
			Expect(view.AllResolved).To(BeTrue())
			Expect(view.Facts[0].NormalizedValue).To(Equal("3:30 PM"))
		})

		It("returns 404 for a missing conflict", func() {
			id := extracted()
			w := do(http.MethodPost, "/api/sessions/"+id+"/conflicts/5/accept", map[string]any{"variant_index": 0, "value": "x"})
			Expect(w.Code).To(Equal(http.StatusNotFound))
			Expect(decodeError(w).Error.Code).To(Equal(wizard.CodeConflictNotFound))
		})

		It("validates the request body", func() {
			id := extracted()
			Expect(do(http.MethodPost, "/api/sessions/"+id+"/conflicts/0/accept", map[string]any{"value": "3:30 PM"}).Code).To(Equal(http.StatusBadRequest))
			Expect(do(http.MethodPost, "/api/sessions/"+id+"/conflicts/abc/accept", map[string]any{"variant_index": 0, "value": "x"}).Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("Timeline and recommendation", func() {
		var id string

		BeforeEach(func() {
			be.extractFn = func(context.Context, []model.UploadedFile) (*model.ExtractionResult, error) {
				return &model.ExtractionResult{Facts: []model.Fact{{ExtractedFact: "Light was red", Source: "police"}}}, nil
			}
			id = extracted()
			w := do(http.MethodPost, "/api/sessions/"+id+"/next", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(decodeSession(w).Session.CurrentStep).To(Equal("timeline"))
		})

		It("edits and reorders events", func() {
			w := do(http.MethodPut, "/api/sessions/"+id+"/timeline/events/1", map[string]string{"description": "Impact at the junction"})
			Expect(w.Code).To(Equal(http.StatusOK))

			w = do(http.MethodPost, "/api/sessions/"+id+"/timeline/events/1/move", map[string]string{"direction": "up"})
			Expect(w.Code).To(Equal(http.StatusOK))
			events := decodeSession(w).Session.Timeline.Events
			Expect(events[0].Description).To(Equal("Impact at the junction"))
			Expect(events[0].EventNumber).To(Equal(1))
		})

		It("rejects a bad move", func() {
			Expect(do(http.MethodPost, "/api/sessions/"+id+"/timeline/events/0/move", map[string]string{"direction": "sideways"}).Code).To(Equal(http.StatusBadRequest))
			Expect(do(http.MethodPost, "/api/sessions/"+id+"/timeline/events/0/move", map[string]string{"direction": "up"}).Code).To(Equal(http.StatusBadRequest))
		})

		It("saves the timeline", func() {
			Expect(do(http.MethodPost, "/api/sessions/"+id+"/timeline/save", nil).Code).To(Equal(http.StatusOK))
		})

		It("adjusts the liability split", func() {
			w := do(http.MethodPut, "/api/sessions/"+id+"/recommendation", map[string]int{"claimant_liability_percent": 20})
			Expect(w.Code).To(Equal(http.StatusOK))

			var body struct {
				Recommendation model.Recommendation `json:"recommendation"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Recommendation.OtherDriverLiabilityPercent).To(Equal(80))
			Expect(body.Recommendation.Adjusted).To(BeTrue())
		})

		It("exports the fact matrix", func() {
			w := do(http.MethodGet, "/api/sessions/"+id+"/export", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Disposition")).To(ContainSubstring("fact_matrix_" + id + ".json"))
			Expect(w.Body.String()).To(ContainSubstring("Light was red"))
		})
	})

	Describe("Escalation", func() {
		It("needs signals before generating the package", func() {
			be.extractFn = func(context.Context, []model.UploadedFile) (*model.ExtractionResult, error) {
				return &model.ExtractionResult{Facts: []model.Fact{{ExtractedFact: "Light was red", Source: "police"}}}, nil
			}
			id := extracted()

			w := do(http.MethodPost, "/api/sessions/"+id+"/escalation", nil)
			Expect(w.Code).To(Equal(http.StatusConflict))
			Expect(decodeError(w).Error.Code).To(Equal(wizard.CodeNoSignals))

			Expect(do(http.MethodPost, "/api/sessions/"+id+"/signals", nil).Code).To(Equal(http.StatusOK))
			Expect(do(http.MethodPost, "/api/sessions/"+id+"/escalation", nil).Code).To(Equal(http.StatusOK))

			w = do(http.MethodPost, "/api/sessions/"+id+"/escalation/send", nil)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(decodeSession(w).Session.Escalated).To(BeTrue())

			Expect(do(http.MethodPost, "/api/sessions/"+id+"/escalation/send", nil).Code).To(Equal(http.StatusConflict))
		})
	})

	Describe("Export", func() {
		It("refuses before extraction", func() {
			id := create()
			w := do(http.MethodGet, "/api/sessions/"+id+"/export", nil)
			Expect(w.Code).To(Equal(http.StatusConflict))
			Expect(decodeError(w).Error.Code).To(Equal(wizard.CodeNoFacts))
		})
	})

	Describe("Events", func() {
		It("opens with the current session and ends when the session closes", func() {
			id := create()
			ctrl, ok := registry.Get(id)
			Expect(ok).To(BeTrue())
			ctrl.Close()

			w := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool)}
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/sessions/"+id+"/events", nil))
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring("event:session"))
			Expect(w.Body.String()).To(ContainSubstring(id))
		})
	})

	Describe("RateLimit", func() {
		It("returns 429 once a client exceeds its budget", func() {
			h := handler.NewSessionHandler(registry, 0, nil)
			engine = gin.New()
			router.SetupRoutes(engine, h, router.RouterConfig{Limiter: worker.NewLimiter(0.001, 1)})

			Expect(do(http.MethodPost, "/api/sessions", nil).Code).To(Equal(http.StatusCreated))
			w := do(http.MethodPost, "/api/sessions", nil)
			Expect(w.Code).To(Equal(http.StatusTooManyRequests))
			Expect(decodeError(w).Error.Code).To(Equal("rate_limited"))

			Expect(do(http.MethodGet, "/health", nil).Code).To(Equal(http.StatusOK))
		})
	})
})
