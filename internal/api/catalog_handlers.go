package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/menu-crawler/internal/menu"
	"github.com/JakeFAU/menu-crawler/internal/storage/postgres"
)

// itemDTO adds the bot-side numeric price to a catalog item.
type itemDTO struct {
	menu.CatalogItem
	PriceMinor *int64 `json:"price_minor"`
}

func toItemDTO(item menu.CatalogItem) itemDTO {
	dto := itemDTO{CatalogItem: item}
	if minor, ok := menu.PriceMinorUnits(item.Price); ok {
		dto.PriceMinor = &minor
	}
	return dto
}

func toItemDTOs(items []menu.CatalogItem) []itemDTO {
	out := make([]itemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, toItemDTO(item))
	}
	return out
}

func (s *Server) listRestaurants(w http.ResponseWriter, r *http.Request) {
	restaurants, err := s.backend.ListRestaurants(r.Context())
	if err != nil {
		s.logger.Error("list restaurants failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list restaurants")
		return
	}
	if restaurants == nil {
		restaurants = []menu.Restaurant{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"restaurants": restaurants})
}

func (s *Server) getRestaurant(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "restaurant_id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	restaurant, err := s.backend.GetRestaurant(r.Context(), id)
	if err != nil {
		s.storeError(w, "get restaurant", err)
		return
	}
	s.writeJSON(w, http.StatusOK, restaurant)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "restaurant_id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	collection, err := pathCollection(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	categories, err := s.backend.ListCategories(r.Context(), collection, id)
	if err != nil {
		s.storeError(w, "list categories", err)
		return
	}
	if categories == nil {
		categories = []menu.CategorySummary{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt64(r, "restaurant_id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	collection, err := pathCollection(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	// Category 0 is valid: it groups items whose listing block had no id.
	categoryID, err := strconv.Atoi(chi.URLParam(r, "category_id"))
	if err != nil || categoryID < 0 {
		s.writeError(w, http.StatusBadRequest, "invalid category_id")
		return
	}
	items, err := s.backend.ListItems(r.Context(), collection, id, categoryID)
	if err != nil {
		s.storeError(w, "list items", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": toItemDTOs(items)})
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	collection, err := pathCollection(r)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	id, err := pathInt64(r, "item_id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var restaurantID int64
	if raw := r.URL.Query().Get("restaurant_id"); raw != "" {
		restaurantID, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || restaurantID < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid restaurant_id")
			return
		}
	}
	item, err := s.backend.GetItem(r.Context(), collection, id, restaurantID)
	if err != nil {
		s.storeError(w, "get item", err)
		return
	}
	s.writeJSON(w, http.StatusOK, toItemDTO(item))
}

// storeError maps gateway errors to responses.
func (s *Server) storeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, postgres.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, postgres.ErrEmptyCart):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error(op+" failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, op+" failed")
	}
}
