package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ngasani/shadeview/internal/observability"
	"github.com/ngasani/shadeview/internal/selection"
	"github.com/ngasani/shadeview/internal/session"
	"github.com/ngasani/shadeview/model"
)

func handleCreateSession(engine *session.Engine, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := engine.Start(r.Context())
		if err != nil {
			WriteError(w, err)
			return
		}
		if metrics != nil {
			metrics.RecordSessionStart()
		}
		desc, err := engine.Describe(r.Context(), sess.ID)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, desc)
	}
}

func handleGetSession(engine *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		desc, err := engine.Describe(r.Context(), chi.URLParam(r, "sessionId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, desc)
	}
}

func handleUploadImage(engine *session.Engine, maxBytes int64) http.HandlerFunc {
	type uploadRequest struct {
		Filename string `json:"filename"`
		MIMEType string `json:"mime_type"`
		Data     []byte `json:"data"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

		var req uploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				WriteError(w, model.NewBadRequestError("image exceeds upload size limit"))
				return
			}
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		if len(req.Data) == 0 {
			WriteValidationError(w, []model.FieldError{{Field: "data", Message: "image data is required"}})
			return
		}
		// The file picker accepts any image type; only non-images are refused.
		if !strings.HasPrefix(req.MIMEType, "image/") {
			WriteValidationError(w, []model.FieldError{{Field: "mime_type", Message: "not an image type"}})
			return
		}

		_, err := engine.AcquireImage(r.Context(), chi.URLParam(r, "sessionId"), model.UploadedImage{
			Data:     req.Data,
			MIMEType: req.MIMEType,
			Filename: req.Filename,
		})
		if err != nil {
			WriteError(w, err)
			return
		}
		writeDescriptor(w, r, engine)
	}
}

func handleGetImage(engine *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := engine.Load(r.Context(), chi.URLParam(r, "sessionId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		if sess.Image == nil {
			WriteNotFound(w, "no image uploaded for this session")
			return
		}
		w.Header().Set("Content-Type", sess.Image.MIMEType)
		w.WriteHeader(http.StatusOK)
		w.Write(sess.Image.Data)
	}
}

func handleChooseProductType(engine *session.Engine) http.HandlerFunc {
	type productTypeRequest struct {
		ProductType  model.ProductType  `json:"product_type"`
		CurtainStyle model.CurtainStyle `json:"curtain_style,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req productTypeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		if !req.ProductType.Valid() {
			WriteValidationError(w, []model.FieldError{{Field: "product_type", Message: "unknown product type"}})
			return
		}
		if req.CurtainStyle != "" && !req.CurtainStyle.Valid() {
			WriteValidationError(w, []model.FieldError{{Field: "curtain_style", Message: "unknown curtain style"}})
			return
		}

		_, err := engine.ChooseProductType(r.Context(), chi.URLParam(r, "sessionId"), req.ProductType, req.CurtainStyle)
		if err != nil {
			WriteError(w, err)
			return
		}
		writeDescriptor(w, r, engine)
	}
}

func handleApplySelection(engine *session.Engine) http.HandlerFunc {
	type selectionRequest struct {
		Action    string `json:"action"`
		CompanyID string `json:"company_id,omitempty"`
		ProductID string `json:"product_id,omitempty"`
		ColorID   string `json:"color_id,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req selectionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}

		var intent selection.Intent
		switch req.Action {
		case "choose_company":
			if req.CompanyID == "" {
				WriteValidationError(w, []model.FieldError{{Field: "company_id", Message: "company_id is required"}})
				return
			}
			intent = selection.ChooseCompany{CompanyID: req.CompanyID}
		case "choose_product":
			if req.ProductID == "" {
				WriteValidationError(w, []model.FieldError{{Field: "product_id", Message: "product_id is required"}})
				return
			}
			intent = selection.ChooseProduct{ProductID: req.ProductID}
		case "choose_color":
			if req.ColorID == "" {
				WriteValidationError(w, []model.FieldError{{Field: "color_id", Message: "color_id is required"}})
				return
			}
			intent = selection.ChooseColor{ColorID: req.ColorID}
		default:
			WriteValidationError(w, []model.FieldError{{Field: "action", Message: "unknown selection action"}})
			return
		}

		_, err := engine.ApplySelection(r.Context(), chi.URLParam(r, "sessionId"), intent)
		if err != nil {
			WriteError(w, err)
			return
		}
		writeDescriptor(w, r, engine)
	}
}

func handleSetResultView(engine *session.Engine) http.HandlerFunc {
	type viewRequest struct {
		View model.ResultView `json:"view"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req viewRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, model.NewBadRequestError("invalid JSON body"))
			return
		}
		if req.View != model.ResultViewDay && req.View != model.ResultViewNight {
			WriteValidationError(w, []model.FieldError{{Field: "view", Message: "view must be day or night"}})
			return
		}

		_, err := engine.SetResultView(r.Context(), chi.URLParam(r, "sessionId"), req.View)
		if err != nil {
			WriteError(w, err)
			return
		}
		writeDescriptor(w, r, engine)
	}
}

func handleGetResultImage(engine *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := engine.Load(r.Context(), chi.URLParam(r, "sessionId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		if sess.Result == nil {
			WriteNotFound(w, "this session has no simulation result")
			return
		}

		var data []byte
		switch model.ResultView(chi.URLParam(r, "view")) {
		case model.ResultViewDay:
			data = sess.Result.DayImage
		case model.ResultViewNight:
			data = sess.Result.NightImage
		default:
			WriteError(w, model.NewBadRequestError("view must be day or night"))
			return
		}
		if len(data) == 0 {
			WriteNotFound(w, "no composite image for this view")
			return
		}
		// The rendering service does not declare a format; sniff it.
		w.Header().Set("Content-Type", http.DetectContentType(data))
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}

func handleBack(engine *session.Engine, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		before, err := engine.Load(r.Context(), chi.URLParam(r, "sessionId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		after, err := engine.Back(r.Context(), before.ID)
		if err != nil {
			WriteError(w, err)
			return
		}
		if metrics != nil {
			metrics.RecordSessionTransition(string(before.Step), string(after.Step))
		}
		writeDescriptor(w, r, engine)
	}
}

func handleReset(engine *session.Engine, metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, err := engine.Reset(r.Context(), chi.URLParam(r, "sessionId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		if metrics != nil {
			metrics.RecordSessionReset()
		}
		writeDescriptor(w, r, engine)
	}
}

func handleOpenAdmin(engine *session.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, err := engine.OpenAdmin(r.Context(), chi.URLParam(r, "sessionId"))
		if err != nil {
			WriteError(w, err)
			return
		}
		writeDescriptor(w, r, engine)
	}
}

// writeDescriptor responds with the session's current descriptor.
func writeDescriptor(w http.ResponseWriter, r *http.Request, engine *session.Engine) {
	desc, err := engine.Describe(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, desc)
}
