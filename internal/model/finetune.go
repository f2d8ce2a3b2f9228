package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/voslund/vigil/internal/models"
	"go.uber.org/zap"
)

// InteractionSource supplies recent completed prompt/response pairs.
type InteractionSource interface {
	Interactions(limit int) ([]models.Interaction, error)
}

// FineTuner maintains a JSONL training file from recent successful
// interactions and periodically submits it to the provider. Failures here are
// maintenance noise: the caller logs them and the main loop continues.
type FineTuner struct {
	client   Client
	source   InteractionSource
	dataPath string
	keep     int
	logger   *zap.Logger
}

// NewFineTuner creates a fine-tuner keeping at most `keep` recent examples.
func NewFineTuner(client Client, source InteractionSource, dataPath string, keep int, logger *zap.Logger) *FineTuner {
	if keep <= 0 {
		keep = 100
	}
	return &FineTuner{
		client:   client,
		source:   source,
		dataPath: dataPath,
		keep:     keep,
		logger:   logger,
	}
}

// minExamples is the floor below which a fine-tuning job is not worth
// submitting.
const minExamples = 10

// Run refreshes the training file and submits a fine-tuning job.
func (f *FineTuner) Run(ctx context.Context) error {
	interactions, err := f.source.Interactions(f.keep)
	if err != nil {
		return fmt.Errorf("sample interactions: %w", err)
	}
	if len(interactions) == 0 {
		return fmt.Errorf("no interactions to train on")
	}

	data, err := encodeExamples(interactions)
	if err != nil {
		return err
	}
	if err := f.writeTrainingFile(data); err != nil {
		return err
	}
	f.logger.Info("fine-tuning data refreshed",
		zap.Int("examples", len(interactions)),
		zap.String("path", f.dataPath))

	if len(interactions) < minExamples {
		return fmt.Errorf("not enough examples for fine-tuning: have %d, need %d", len(interactions), minExamples)
	}

	tuner, ok := f.client.(Tuner)
	if !ok {
		return ErrFineTuneUnsupported
	}

	fileID, err := tuner.UploadTrainingFile(ctx, data)
	if err != nil {
		return fmt.Errorf("upload training file: %w", err)
	}
	jobID, err := tuner.CreateFineTuneJob(ctx, fileID)
	if err != nil {
		return fmt.Errorf("create fine-tuning job: %w", err)
	}

	f.logger.Info("fine-tuning job submitted",
		zap.String("file_id", fileID),
		zap.String("job_id", jobID))
	return nil
}

// encodeExamples renders interactions as provider-format JSONL.
func encodeExamples(interactions []models.Interaction) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, in := range interactions {
		example := models.FineTuneExample{
			Messages: []models.ChatMessage{
				{Role: "system", Content: in.Prompt.Content},
				{Role: "assistant", Content: in.Response.Content},
			},
			Timestamp: in.Response.Timestamp,
		}
		if err := enc.Encode(example); err != nil {
			return nil, fmt.Errorf("encode example: %w", err)
		}
	}
	return buf.Bytes(), nil
}

func (f *FineTuner) writeTrainingFile(data []byte) error {
	dir := filepath.Dir(f.dataPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".training-*.jsonl")
	if err != nil {
		return fmt.Errorf("create training file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write training file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close training file: %w", err)
	}
	if err := os.Rename(tmpName, f.dataPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace training file: %w", err)
	}
	return nil
}
