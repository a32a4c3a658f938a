package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"docinsight/internal/model"
)

const (
	summariesCollection = "summaries"
	insightsCollection  = "insights"
)

var ErrSummaryMissing = errors.New("summary document missing")

// SummaryStore keeps summaries and insights in two collections linked by
// summary_id. A failed insight batch removes the summary it belonged to.
type SummaryStore struct {
	summaries *mongo.Collection
	insights  *mongo.Collection
	logger    *zap.Logger
}

func NewSummaryStore(db *mongo.Database, logger *zap.Logger) *SummaryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryStore{
		summaries: db.Collection(summariesCollection),
		insights:  db.Collection(insightsCollection),
		logger:    logger,
	}
}

func (s *SummaryStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.summaries.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create summaries index failed: %w", err)
	}
	_, err = s.insights.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "summary_id", Value: 1}, {Key: "position", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create insights index failed: %w", err)
	}
	return nil
}

func (s *SummaryStore) CreateWithInsights(ctx context.Context, summary *model.Summary, insights []model.Insight) error {
	summary.EnsureID()
	if _, err := s.summaries.InsertOne(ctx, summary); err != nil {
		return fmt.Errorf("insert summary failed: %w", err)
	}
	if len(insights) == 0 {
		return nil
	}

	docs := make([]any, 0, len(insights))
	for i := range insights {
		insights[i].SummaryID = summary.ID
		insights[i].EnsureID()
		docs = append(docs, insights[i])
	}
	if _, err := s.insights.InsertMany(ctx, docs); err != nil {
		s.compensate(ctx, summary.ID)
		return fmt.Errorf("insert insights failed: %w", err)
	}
	return nil
}

func (s *SummaryStore) compensate(ctx context.Context, summaryID string) {
	ctx = context.WithoutCancel(ctx)
	if _, err := s.insights.DeleteMany(ctx, bson.M{"summary_id": summaryID}); err != nil {
		s.logger.Error("remove partial insights failed", zap.String("summary_id", summaryID), zap.Error(err))
	}
	if _, err := s.summaries.DeleteOne(ctx, bson.M{"_id": summaryID}); err != nil {
		s.logger.Error("remove summary after failed insight batch failed", zap.String("summary_id", summaryID), zap.Error(err))
	}
}

func (s *SummaryStore) GetByID(ctx context.Context, id string) (*model.Summary, error) {
	var summary model.Summary
	if err := s.summaries.FindOne(ctx, bson.M{"_id": id}).Decode(&summary); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find summary failed: %w", err)
	}
	return &summary, nil
}

func (s *SummaryStore) ListByUserID(ctx context.Context, userID uint) ([]model.Summary, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.summaries.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list summaries failed: %w", err)
	}
	summaries := []model.Summary{}
	if err := cursor.All(ctx, &summaries); err != nil {
		return nil, fmt.Errorf("decode summaries failed: %w", err)
	}
	return summaries, nil
}

func (s *SummaryStore) ListInsights(ctx context.Context, summaryID string) ([]model.Insight, error) {
	opts := options.Find().SetSort(bson.D{{Key: "position", Value: 1}})
	cursor, err := s.insights.Find(ctx, bson.M{"summary_id": summaryID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list insights failed: %w", err)
	}
	insights := []model.Insight{}
	if err := cursor.All(ctx, &insights); err != nil {
		return nil, fmt.Errorf("decode insights failed: %w", err)
	}
	return insights, nil
}

func (s *SummaryStore) UpdateContent(ctx context.Context, id, title, content string, modifiedAt time.Time) error {
	res, err := s.summaries.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"title":       title,
		"content":     content,
		"modified_at": modifiedAt,
	}})
	if err != nil {
		return fmt.Errorf("update summary failed: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update summary failed: %w", ErrSummaryMissing)
	}
	return nil
}

// DeleteWithInsights removes insights first so a partial failure never leaves orphans.
func (s *SummaryStore) DeleteWithInsights(ctx context.Context, id string) error {
	if _, err := s.insights.DeleteMany(ctx, bson.M{"summary_id": id}); err != nil {
		return fmt.Errorf("delete insights failed: %w", err)
	}
	if _, err := s.summaries.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete summary failed: %w", err)
	}
	return nil
}
