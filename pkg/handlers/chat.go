package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	apperrors "github.com/ahmed123456787/forsa-tech/pkg/errors"
	"github.com/ahmed123456787/forsa-tech/pkg/logging"
	"github.com/ahmed123456787/forsa-tech/pkg/monitoring"
	"github.com/ahmed123456787/forsa-tech/pkg/rag"
	"github.com/ahmed123456787/forsa-tech/pkg/store"
)

// ChatHandler serves the blocking question endpoint and chat history CRUD.
type ChatHandler struct {
	generator *rag.AnswerGenerator
	chats     *store.ChatStore
	metrics   *monitoring.Metrics
	logger    *logging.StructuredLogger
}

// NewChatHandler creates a chat handler. chats and metrics may be nil.
func NewChatHandler(generator *rag.AnswerGenerator, chats *store.ChatStore, metrics *monitoring.Metrics, logger *logging.StructuredLogger) *ChatHandler {
	return &ChatHandler{
		generator: generator,
		chats:     chats,
		metrics:   metrics,
		logger:    logger.WithComponent("chat-handler"),
	}
}

// AskRequest is the body for the question endpoints.
type AskRequest struct {
	Question string `json:"question"`
	Category string `json:"category,omitempty"`
}

func (h *ChatHandler) validateAsk(r *http.Request) (*AskRequest, error) {
	builder := apperrors.NewErrorBuilder("handlers", "ask", h.logger.Logger)

	var request AskRequest
	if err := decodeBody(r, &request); err != nil {
		return nil, builder.ValidationError("invalid_body", "request body is not valid JSON")
	}

	request.Question = strings.TrimSpace(request.Question)
	if request.Question == "" {
		return nil, builder.InvalidFieldError("question", "cannot be empty")
	}
	return &request, nil
}

// Ask handles POST /api/ask/: full retrieval-augmented answer in one response.
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	request, err := h.validateAsk(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	answer, err := h.generator.AskQuestion(r.Context(), request.Question, request.Category)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if answer.FallbackUsed && h.metrics != nil {
		h.metrics.CategoryFallbacksTotal.Inc()
	}

	var chatID string
	if h.chats != nil {
		record, storeErr := h.chats.Create(r.Context(), "",
			store.SingleQA(answer.Category, request.Question),
			store.SingleQA(answer.Category, answer.Text),
			referenceURLs(answer.UniqueFiles))
		if storeErr != nil {
			h.logger.Warn("Failed to persist chat", "error", storeErr)
		} else {
			chatID = record.ID
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":          true,
		"chat_id":          chatID,
		"answer":           answer.Text,
		"category":         answer.Category,
		"fallback_used":    answer.FallbackUsed,
		"results":          answer.Results,
		"files_referenced": answer.UniqueFiles,
	})
}

// ChatsRequest is the body for POST /api/chats/: a team identifier and a
// nested question mapping, category to question ID to question text.
type ChatsRequest struct {
	Equipe   string      `json:"equipe"`
	Question store.QAMap `json:"question"`
}

// ChatsResponse echoes the team identifier with an answer map isomorphic
// to the question map.
type ChatsResponse struct {
	Equipe   string      `json:"equipe"`
	Reponses store.QAMap `json:"reponses"`
}

// CreateChats handles POST /api/chats/: answers every question in the
// nested mapping and persists the question/answer pair as one record.
func (h *ChatHandler) CreateChats(w http.ResponseWriter, r *http.Request) {
	builder := apperrors.NewErrorBuilder("handlers", "create_chats", h.logger.Logger)

	var request ChatsRequest
	if err := decodeBody(r, &request); err != nil {
		writeError(w, r, builder.ValidationError("invalid_body", "request body is not valid JSON"))
		return
	}
	request.Equipe = strings.TrimSpace(request.Equipe)
	if request.Equipe == "" {
		writeError(w, r, builder.InvalidFieldError("equipe", "cannot be empty"))
		return
	}
	if len(request.Question) == 0 {
		writeError(w, r, builder.InvalidFieldError("question", "cannot be empty"))
		return
	}

	reponses := make(store.QAMap, len(request.Question))
	for category, questions := range request.Question {
		answers := make(map[string]string, len(questions))
		for questionID, text := range questions {
			if strings.TrimSpace(text) == "" {
				writeError(w, r, builder.InvalidFieldError("question",
					"question "+questionID+" cannot be empty"))
				return
			}
			answer, err := h.generator.AskQuestion(r.Context(), text, category)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if answer.FallbackUsed && h.metrics != nil {
				h.metrics.CategoryFallbacksTotal.Inc()
			}
			answers[questionID] = answer.Text
		}
		reponses[category] = answers
	}

	if h.chats != nil {
		if _, err := h.chats.Create(r.Context(), request.Equipe, request.Question, reponses, nil); err != nil {
			h.logger.Warn("Failed to persist chat", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, ChatsResponse{
		Equipe:   request.Equipe,
		Reponses: reponses,
	})
}

// ListChats handles GET /api/chats/.
func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	records, err := h.chats.GetAll(r.Context(), 100)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"chats":   records,
		"count":   len(records),
	})
}

// GetChat handles GET /api/chats/{id}.
func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	record, err := h.chats.GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"chat":    record,
	})
}

// DeleteChat handles DELETE /api/chats/{id}.
func (h *ChatHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	if err := h.chats.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"deleted": true,
	})
}

func referenceURLs(files []rag.UniqueFileReference) []string {
	urls := make([]string, 0, len(files))
	for _, f := range files {
		switch {
		case f.Source != "":
			urls = append(urls, f.Source)
		case f.FileName != "":
			urls = append(urls, f.FileName)
		}
	}
	return urls
}
