package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/responses"
	"github.com/openai/openai-go/v2/shared/constant"
)

// OpenAIRunner is the production Runner over the OpenAI Responses API.
// Each role lazily gets a vector store populated with the reference
// documents found under <docsDir>/<role>/; turns then run with file search
// and code interpreter tools attached.
type OpenAIRunner struct {
	client  openai.Client
	model   openai.ChatModel
	docsDir string

	mu           sync.Mutex
	vectorStores map[string]string // role -> vector store id
}

// NewOpenAIRunner creates a runner using the given API key and model.
func NewOpenAIRunner(apiKey, model, docsDir string) *OpenAIRunner {
	return &OpenAIRunner{
		client:       openai.NewClient(option.WithAPIKey(apiKey)),
		model:        openai.ChatModel(model),
		docsDir:      docsDir,
		vectorStores: make(map[string]string),
	}
}

// RunTurn executes one agent turn for the role.
func (r *OpenAIRunner) RunTurn(ctx context.Context, role, prompt string) (*TurnResult, error) {
	vsID, err := r.vectorStoreFor(ctx, role)
	if err != nil {
		return nil, r.classify(ctx, role, err)
	}

	tools := []responses.ToolUnionParam{
		{
			OfCodeInterpreter: &responses.ToolCodeInterpreterParam{
				Container: responses.ToolCodeInterpreterContainerUnionParam{
					OfCodeInterpreterContainerAuto: &responses.ToolCodeInterpreterContainerCodeInterpreterContainerAutoParam{
						Type: constant.ValueOf[constant.Auto](),
					},
				},
				Type: constant.ValueOf[constant.CodeInterpreter](),
			},
		},
	}
	if vsID != "" {
		tools = append(tools, responses.ToolUnionParam{
			OfFileSearch: &responses.FileSearchToolParam{
				VectorStoreIDs: []string{vsID},
				Type:           constant.ValueOf[constant.FileSearch](),
			},
		})
	}

	resp, err := r.client.Responses.New(ctx, responses.ResponseNewParams{
		Model: r.model,
		Input: responses.ResponseNewParamsInputUnion{OfString: openai.String(prompt)},
		Tools: tools,
	})
	if err != nil {
		return nil, r.classify(ctx, role, err)
	}

	if resp.Status == responses.ResponseStatusFailed || resp.Status == responses.ResponseStatusIncomplete {
		detail := string(resp.Status)
		if resp.Error.Message != "" {
			detail = resp.Error.Message
		}
		slog.Warn("agent run reported failure", "role", role, "status", resp.Status, "detail", detail)
		return &TurnResult{Failed: true, FailureDetail: detail}, nil
	}

	return &TurnResult{
		Text:   resp.OutputText(),
		Images: collectImages(resp),
	}, nil
}

// SaveFile downloads a container file to dest.
func (r *OpenAIRunner) SaveFile(ctx context.Context, ref FileRef, dest string) error {
	httpResp, err := r.client.Containers.Files.Content.Get(ctx, ref.ContainerID, ref.FileID)
	if err != nil {
		return &TransportError{Role: "download", Err: err}
	}
	defer httpResp.Body.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, httpResp.Body); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return nil
}

// vectorStoreFor lazily uploads the role's reference documents and creates
// its vector store. Roles without documents get no file search tool.
func (r *OpenAIRunner) vectorStoreFor(ctx context.Context, role string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.vectorStores[role]; ok {
		return id, nil
	}

	docs, err := r.roleDocs(role)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		r.vectorStores[role] = ""
		return "", nil
	}

	var fileIDs []string
	for _, path := range docs {
		f, err := os.Open(path)
		if err != nil {
			return "", fmt.Errorf("open reference doc %s: %w", path, err)
		}
		uploaded, err := r.client.Files.New(ctx, openai.FileNewParams{
			File:    f,
			Purpose: openai.FilePurposeAssistants,
		})
		f.Close()
		if err != nil {
			return "", err
		}
		fileIDs = append(fileIDs, uploaded.ID)
	}

	vs, err := r.client.VectorStores.New(ctx, openai.VectorStoreNewParams{
		Name:    openai.String("researchd-" + role),
		FileIDs: fileIDs,
	})
	if err != nil {
		return "", err
	}

	slog.Info("created vector store", "role", role, "docs", len(fileIDs), "vector_store_id", vs.ID)
	r.vectorStores[role] = vs.ID
	return vs.ID, nil
}

func (r *OpenAIRunner) roleDocs(role string) ([]string, error) {
	dir := filepath.Join(r.docsDir, role)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read docs dir %s: %w", dir, err)
	}
	var docs []string
	for _, e := range entries {
		if !e.IsDir() {
			docs = append(docs, filepath.Join(dir, e.Name()))
		}
	}
	return docs, nil
}

// classify maps a raw error to the package's typed errors. A deadline that
// expired on our side is a timeout; everything else is transport.
func (r *OpenAIRunner) classify(ctx context.Context, role string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return &TimeoutError{Role: role}
	}
	return &TransportError{Role: role, Err: err}
}

func collectImages(resp *responses.Response) []FileRef {
	var images []FileRef
	for _, item := range resp.Output {
		if item.Type != "message" {
			continue
		}
		for _, content := range item.Content {
			if content.Type != "output_text" {
				continue
			}
			for _, ann := range content.Annotations {
				if ann.Type == "container_file_citation" {
					images = append(images, FileRef{
						ContainerID: ann.ContainerID,
						FileID:      ann.FileID,
						Filename:    ann.Filename,
					})
				}
			}
		}
	}
	return images
}
