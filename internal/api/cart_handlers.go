package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/menu-crawler/internal/menu"
)

type addToCartRequest struct {
	ItemID       int64 `json:"item_id"`
	RestaurantID int64 `json:"restaurant_id"`
	IsWine       bool  `json:"is_wine"`
}

func (s *Server) listCart(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "user_id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	lines, err := s.backend.ListCart(r.Context(), userID)
	if err != nil {
		s.storeError(w, "list cart", err)
		return
	}
	if lines == nil {
		lines = []menu.CartLine{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"items": lines,
		"total": menu.CartTotal(lines),
	})
}

// addToCart resolves name and price from the catalog so the client cannot
// set them.
func (s *Server) addToCart(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "user_id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req addToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.ItemID <= 0 || req.RestaurantID <= 0 {
		s.writeError(w, http.StatusBadRequest, "item_id and restaurant_id are required")
		return
	}

	collection := menu.CollectionMenu
	if req.IsWine {
		collection = menu.CollectionWine
	}
	item, err := s.backend.GetItem(r.Context(), collection, req.ItemID, req.RestaurantID)
	if err != nil {
		s.storeError(w, "get item", err)
		return
	}
	price, ok := menu.PriceMinorUnits(item.Price)
	if !ok {
		s.writeError(w, http.StatusUnprocessableEntity, "item has no price")
		return
	}

	line, err := s.backend.AddToCart(r.Context(), menu.CartLine{
		UserID:       userID,
		ItemID:       item.ID,
		RestaurantID: item.RestaurantID,
		IsWine:       req.IsWine,
		Name:         item.Name,
		PriceMinor:   price,
		Count:        1,
	})
	if err != nil {
		s.storeError(w, "add to cart", err)
		return
	}
	s.logger.Debug("cart updated", zap.Int64("user_id", userID), zap.Int64("item_id", item.ID), zap.Int("count", line.Count))
	s.writeJSON(w, http.StatusOK, line)
}

func (s *Server) clearCart(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "user_id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.backend.ClearCart(r.Context(), userID); err != nil {
		s.storeError(w, "clear cart", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	userID, err := pathInt64(r, "user_id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	order, err := s.backend.Checkout(r.Context(), userID)
	if err != nil {
		s.storeError(w, "checkout", err)
		return
	}
	s.logger.Info("order placed",
		zap.String("order_id", order.ID),
		zap.Int64("user_id", userID),
		zap.Int64("total", order.TotalMinor),
	)
	s.writeJSON(w, http.StatusCreated, order)
}
