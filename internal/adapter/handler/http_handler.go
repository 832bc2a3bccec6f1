package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hqv2816/stockgate/internal/core/domain"
	"github.com/hqv2816/stockgate/internal/core/service"
)

type HTTPHandler struct {
	orders    *service.OrderService
	entryGate *service.AdmissionGate
	orderGate *service.AdmissionGate
}

func NewHTTPHandler(orders *service.OrderService, entryGate, orderGate *service.AdmissionGate) *HTTPHandler {
	return &HTTPHandler{orders: orders, entryGate: entryGate, orderGate: orderGate}
}

func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HealthCheck)
	mux.HandleFunc("/api/queue/enter", h.QueueEnter)
	mux.HandleFunc("/api/queue/status", h.QueueStatus)
	mux.HandleFunc("/api/orders", h.PlaceOrder)
	mux.HandleFunc("/api/orders/confirm", h.ConfirmOrder)
	mux.HandleFunc("/api/orders/cancel", h.CancelOrder)
}

type queueRequest struct {
	Token string `json:"token"`
}

type orderItem struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type placeOrderRequest struct {
	RequestID string      `json:"request_id"`
	UserID    string      `json:"user_id"`
	Token     string      `json:"token"`
	Items     []orderItem `json:"items"`
}

type orderRef struct {
	OrderID string `json:"order_id"`
}

type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	OrderID string `json:"order_id,omitempty"`
}

func (h *HTTPHandler) QueueEnter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req queueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Message: "missing token"})
		return
	}

	if err := h.entryGate.RegisterWait(r.Context(), req.Token); err != nil {
		writeJSON(w, http.StatusInternalServerError, apiResponse{Success: false, Message: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "queued"})
}

func (h *HTTPHandler) QueueStatus(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Message: "missing token"})
		return
	}

	status, err := h.entryGate.Status(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiResponse{Success: false, Message: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (h *HTTPHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Message: "invalid request body"})
		return
	}
	if req.RequestID == "" || req.UserID == "" || req.Token == "" || len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Message: "missing required fields"})
		return
	}
	items := make([]domain.ReservationItem, 0, len(req.Items))
	for _, it := range req.Items {
		if it.ItemID == "" || it.Quantity <= 0 {
			writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Message: "missing required fields"})
			return
		}
		items = append(items, domain.ReservationItem{ItemID: it.ItemID, Quantity: it.Quantity})
	}

	// The order gate guards the reservation path. Unknown members are
	// queued; waiting members are told their position and poll again.
	status, err := h.orderGate.Status(r.Context(), req.Token)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiResponse{Success: false, Message: "internal error"})
		return
	}
	if !status.Active {
		if status.Rank < 0 {
			if err := h.orderGate.RegisterWait(r.Context(), req.Token); err != nil {
				writeJSON(w, http.StatusInternalServerError, apiResponse{Success: false, Message: "internal error"})
				return
			}
			status.Message = "queued"
		}
		writeJSON(w, http.StatusTooManyRequests, status)
		return
	}

	order, err := h.orders.PlaceOrder(r.Context(), req.RequestID, req.UserID, items)
	if err != nil {
		code := http.StatusInternalServerError
		message := "internal error"

		if errors.Is(err, service.ErrDuplicateRequest) {
			code = http.StatusConflict
			message = "duplicate request"
		} else if errors.Is(err, service.ErrOutOfStock) {
			code = http.StatusGone
			message = "sold out"
		}

		writeJSON(w, code, apiResponse{Success: false, Message: message})
		return
	}

	// Placement done; free the order-gate slot. On failure the slot is
	// reclaimed by stale eviction.
	_ = h.orderGate.Exit(r.Context(), req.Token)

	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "order placed", OrderID: order.ID})
}

func (h *HTTPHandler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	h.transitionOrder(w, r, h.orders.ConfirmOrder, "order confirmed")
}

func (h *HTTPHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	h.transitionOrder(w, r, h.orders.CancelOrder, "order cancelled")
}

func (h *HTTPHandler) transitionOrder(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, orderID string) error, okMessage string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req orderRef
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Message: "missing order_id"})
		return
	}

	err := fn(r.Context(), req.OrderID)
	if err != nil {
		status := http.StatusInternalServerError
		message := "internal error"

		if errors.Is(err, service.ErrOrderNotFound) {
			status = http.StatusNotFound
			message = "order not found"
		} else if errors.Is(err, service.ErrInvalidOrderState) {
			status = http.StatusConflict
			message = "invalid order state"
		}

		writeJSON(w, status, apiResponse{Success: false, Message: message})
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: okMessage})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
