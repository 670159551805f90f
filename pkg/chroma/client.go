package chroma

import (
	"context"
	"fmt"
	"os"

	"clientlens-backend/pkg/config"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings/gemini"
	"github.com/rs/zerolog"
)

const collectionName = "communications"

// embedTextLimit caps the text sent to the embedding model.
const embedTextLimit = 10000

// ChromaClient indexes communications into a Chroma collection and answers
// semantic queries over them, scoped per user.
type ChromaClient struct {
	client     chroma.Client
	embedFunc  *gemini.GeminiEmbeddingFunction
	collection chroma.Collection
	log        zerolog.Logger
}

func NewChromaClient(cfg *config.Config, log zerolog.Logger) (*ChromaClient, error) {
	if cfg.ChromaAPIKey == "" {
		return nil, fmt.Errorf("CHROMA_API_KEY is required")
	}

	if cfg.GeminiApiKey != "" {
		os.Setenv("GEMINI_API_KEY", cfg.GeminiApiKey)
	}

	embedFunc, err := gemini.NewGeminiEmbeddingFunction(
		gemini.WithEnvAPIKey(),
		gemini.WithDefaultModel("text-embedding-004"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini embedding function: %w", err)
	}

	var client chroma.Client
	if cfg.ChromaDatabase != "" && cfg.ChromaTenant != "" {
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
			chroma.WithDatabaseAndTenant(cfg.ChromaDatabase, cfg.ChromaTenant),
		)
	} else if cfg.ChromaTenant != "" {
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
			chroma.WithTenant(cfg.ChromaTenant),
		)
	} else {
		client, err = chroma.NewHTTPClient(
			chroma.WithBaseURL(chroma.ChromaCloudEndpoint),
			chroma.WithCloudAPIKey(cfg.ChromaAPIKey),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Chroma client: %w", err)
	}

	collection, err := client.GetOrCreateCollection(
		context.Background(),
		collectionName,
		chroma.WithEmbeddingFunctionCreate(embedFunc),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	logger := log.With().Str("component", "chroma").Logger()
	logger.Info().Str("collection", collectionName).Msg("initialized Chroma client")

	return &ChromaClient{
		client:     client,
		embedFunc:  embedFunc,
		collection: collection,
		log:        logger,
	}, nil
}

// UpsertCommunication embeds a communication's subject and body, keyed on the
// communication id so re-syncing never duplicates documents.
func (c *ChromaClient) UpsertCommunication(ctx context.Context, commID, userID, subject, body string) error {
	text := fmt.Sprintf("Subject: %s\n\nBody: %s", subject, body)
	if len(text) > embedTextLimit {
		text = text[:embedTextLimit]
	}

	metadata, err := chroma.NewDocumentMetadataFromMap(map[string]interface{}{
		"user_id":          userID,
		"communication_id": commID,
		"subject":          subject,
	})
	if err != nil {
		return fmt.Errorf("failed to create metadata: %w", err)
	}

	err = c.collection.Upsert(
		ctx,
		chroma.WithIDs(chroma.DocumentID(commID)),
		chroma.WithMetadatas(metadata),
		chroma.WithTexts(text),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert communication embedding: %w", err)
	}

	return nil
}

// SemanticSearch returns the ids and distances of the user's communications
// closest to the query.
func (c *ChromaClient) SemanticSearch(ctx context.Context, userID, query string, limit int) ([]string, []float64, error) {
	where := chroma.EqString("user_id", userID)

	results, err := c.collection.Query(
		ctx,
		chroma.WithQueryTexts(query),
		chroma.WithNResults(limit),
		chroma.WithWhereQuery(where),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query collection: %w", err)
	}

	if results == nil || results.CountGroups() == 0 {
		return []string{}, []float64{}, nil
	}

	idGroups := results.GetIDGroups()
	if len(idGroups) == 0 || len(idGroups[0]) == 0 {
		return []string{}, []float64{}, nil
	}

	commIDs := make([]string, 0, len(idGroups[0]))
	for _, id := range idGroups[0] {
		commIDs = append(commIDs, string(id))
	}

	distances := []float64{}
	distanceGroups := results.GetDistancesGroups()
	if len(distanceGroups) > 0 {
		for _, d := range distanceGroups[0] {
			distances = append(distances, float64(d))
		}
	}

	c.log.Debug().Str("user_id", userID).Int("results", len(commIDs)).Msg("semantic search complete")
	return commIDs, distances, nil
}

// DeleteCommunication removes a communication's embedding
func (c *ChromaClient) DeleteCommunication(ctx context.Context, commID string) error {
	err := c.collection.Delete(ctx, chroma.WithIDsDelete(chroma.DocumentID(commID)))
	if err != nil {
		return fmt.Errorf("failed to delete communication embedding: %w", err)
	}
	return nil
}
