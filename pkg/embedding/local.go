package embedding

// local.go - Local embedding generation using Hugot/ONNX feature extraction.
//
// Runs fully offline once a model is present. Gracefully degrades: if no model
// or ONNX runtime is available, the embedder reports not-ready and the caller
// falls back to the hash embedder.
//
// Build:
// - Standard: go build (pure Go backend, slower but no dependencies)
// - With ORT: go build -tags ORT (ONNX Runtime, faster)

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/options"
	"github.com/knights-analytics/hugot/pipelines"
)

// LocalEmbedderConfig configures the Hugot-backed embedder.
type LocalEmbedderConfig struct {
	// ModelPath is the local path to the ONNX model directory.
	// If empty and ModelName is set, the model will be downloaded.
	ModelPath string

	// ModelName is the HuggingFace model name used to download the model
	// when ModelPath is empty (e.g. "sentence-transformers/all-MiniLM-L6-v2").
	ModelName string

	// OnnxLibraryPath is the path to libonnxruntime.so. When empty the pure
	// Go backend is used.
	OnnxLibraryPath string

	// Dimension is the output vector length of the model (default: 384,
	// the MiniLM dimension).
	Dimension int

	// Timeout bounds a single inference call.
	Timeout time.Duration
}

// DefaultLocalEmbedderConfig returns the MiniLM defaults.
func DefaultLocalEmbedderConfig() LocalEmbedderConfig {
	return LocalEmbedderConfig{
		ModelPath:       os.Getenv("MIRAGE_EMBED_MODEL_PATH"),
		ModelName:       "sentence-transformers/all-MiniLM-L6-v2",
		OnnxLibraryPath: detectOnnxLibrary(),
		Dimension:       384,
		Timeout:         30 * time.Second,
	}
}

// LocalEmbedder generates embeddings with a local ONNX model via Hugot.
type LocalEmbedder struct {
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
	config   LocalEmbedderConfig
	mu       sync.RWMutex
	ready    bool
}

// NewLocalEmbedder creates and initializes a Hugot-backed embedder.
func NewLocalEmbedder(cfg LocalEmbedderConfig) (*LocalEmbedder, error) {
	if cfg.Dimension <= 0 {
		cfg.Dimension = 384
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	e := &LocalEmbedder{config: cfg}
	if err := e.initialize(); err != nil {
		return nil, fmt.Errorf("local embedder initialization failed: %w", err)
	}
	return e, nil
}

// NewLocalEmbedderWithFallback returns an embedder even when initialization
// fails (ready=false). Callers check IsReady and degrade to the hash embedder.
func NewLocalEmbedderWithFallback(cfg LocalEmbedderConfig) *LocalEmbedder {
	e, err := NewLocalEmbedder(cfg)
	if err != nil {
		log.Printf("[EMBEDDER] local model unavailable (graceful degradation): %v", err)
		return &LocalEmbedder{config: cfg}
	}
	return e
}

func (e *LocalEmbedder) initialize() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	session, err := e.createSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	e.session = session

	modelPath, err := e.resolveModelPath()
	if err != nil {
		_ = e.session.Destroy()
		return fmt.Errorf("failed to resolve model path: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "query-embedder",
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		_ = e.session.Destroy()
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	e.pipeline = pipeline
	e.ready = true
	log.Printf("[EMBEDDER] local model initialized (model: %s)", modelPath)
	return nil
}

func (e *LocalEmbedder) createSession() (*hugot.Session, error) {
	// ONNX Runtime backend first, pure Go fallback.
	if e.config.OnnxLibraryPath != "" {
		session, err := hugot.NewORTSession(
			options.WithOnnxLibraryPath(e.config.OnnxLibraryPath),
		)
		if err == nil {
			return session, nil
		}
		log.Printf("[EMBEDDER] ONNX Runtime unavailable, falling back to Go backend: %v", err)
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create Go session: %w", err)
	}
	return session, nil
}

func (e *LocalEmbedder) resolveModelPath() (string, error) {
	if e.config.ModelPath != "" {
		if _, err := os.Stat(e.config.ModelPath); err == nil {
			return e.config.ModelPath, nil
		}
	}

	if e.config.ModelName == "" {
		return "", fmt.Errorf("no model path or name specified")
	}

	modelsDir := "./models"
	if err := os.MkdirAll(modelsDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create models directory: %w", err)
	}

	log.Printf("[EMBEDDER] downloading model %s...", e.config.ModelName)
	modelPath, err := hugot.DownloadModel(e.config.ModelName, modelsDir, hugot.NewDownloadOptions())
	if err != nil {
		return "", fmt.Errorf("failed to download model: %w", err)
	}
	return modelPath, nil
}

// IsReady reports whether the model is loaded and inference is possible.
func (e *LocalEmbedder) IsReady() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ready
}

// Embed runs feature extraction on the text.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.ready || e.pipeline == nil {
		return nil, fmt.Errorf("local embedder not ready")
	}

	result, err := e.pipeline.RunPipeline([]string{text})
	if err != nil {
		return nil, fmt.Errorf("embedding inference failed: %w", err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return result.Embeddings[0], nil
}

// Dimension returns the model's output vector length.
func (e *LocalEmbedder) Dimension() int {
	return e.config.Dimension
}

// Close releases the ONNX session.
func (e *LocalEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ready = false
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}

// detectOnnxLibrary checks common install locations for the ONNX runtime.
func detectOnnxLibrary() string {
	paths := []string{
		"/usr/lib/libonnxruntime.so",
		"/usr/local/lib/libonnxruntime.so",
		"/opt/homebrew/lib/libonnxruntime.dylib",
		"/usr/local/lib/libonnxruntime.dylib",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return filepath.Dir(p)
		}
	}
	return ""
}
