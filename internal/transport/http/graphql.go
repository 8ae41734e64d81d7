package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"infosync/internal/wire"
	dErrors "infosync/pkg/domain-errors"
	"infosync/pkg/platform/httputil"
	"infosync/pkg/requestcontext"
)

// UpsertService applies an upsert on a downstream peer.
type UpsertService interface {
	Mutation() string
	Upsert(ctx context.Context, in wire.UpsertInput) wire.Result
}

// FeedbackService records acknowledgements on the origin.
type FeedbackService interface {
	Receive(ctx context.Context, in wire.FeedbackInput) wire.Result
}

// GraphQLHandler serves POST /graphql/. It is not a GraphQL engine: it
// reads the mutation name from the query and hands the input variable to
// the matching service.
type GraphQLHandler struct {
	upsert   UpsertService
	feedback FeedbackService
	logger   *slog.Logger
}

// NewGraphQLHandler builds the handler. Either service may be nil when this
// peer does not answer that mutation.
func NewGraphQLHandler(upsert UpsertService, feedback FeedbackService, logger *slog.Logger) *GraphQLHandler {
	return &GraphQLHandler{upsert: upsert, feedback: feedback, logger: logger}
}

func (h *GraphQLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req wire.Request
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.reject(ctx, w, err)
		return
	}
	name, err := req.MutationName()
	if err != nil {
		h.reject(ctx, w, err)
		return
	}

	var result wire.Result
	switch {
	case h.upsert != nil && name == h.upsert.Mutation():
		var in wire.UpsertInput
		if err := req.DecodeInput(&in); err != nil {
			h.reject(ctx, w, err)
			return
		}
		result = h.upsert.Upsert(ctx, in)
	case h.feedback != nil && name == wire.MutationFeedback:
		var in wire.FeedbackInput
		if err := req.DecodeInput(&in); err != nil {
			h.reject(ctx, w, err)
			return
		}
		result = h.feedback.Receive(ctx, in)
	default:
		h.reject(ctx, w, dErrors.New(dErrors.CodeNotFound, "unknown mutation "+name))
		return
	}

	h.logger.InfoContext(ctx, "mutation handled",
		"mutation", name,
		"success", result.Success,
		"caller", requestcontext.Caller(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, wire.NewResponse(name, result))
}

// reject answers with a GraphQL-style errors array. Peers treat it as a
// failed call whatever the status.
func (h *GraphQLHandler) reject(ctx context.Context, w http.ResponseWriter, err error) {
	h.logger.WarnContext(ctx, "rejected graphql request",
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	status := dErrors.HTTPStatus(dErrors.CodeOf(err))
	httputil.WriteJSON(w, status, wire.ErrorResponse(dErrors.MessageOf(err, "internal error")))
}
