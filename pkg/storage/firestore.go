package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/matst80/slask-grid/pkg/types"
)

const projectCollection = "projects"

var ErrProjectNotFound = errors.New("project not found")

// ProjectInfo is what a project listing shows, the grid itself stays in the
// document until someone loads it.
type ProjectInfo struct {
	Name      string    `json:"name" firestore:"name"`
	UpdatedAt time.Time `json:"updatedAt" firestore:"updatedAt"`
	Records   int       `json:"records" firestore:"records"`
}

type projectDoc struct {
	Name      string    `firestore:"name"`
	UpdatedAt time.Time `firestore:"updatedAt"`
	Records   int       `firestore:"records"`
	Grid      []byte    `firestore:"grid"`
}

// ProjectStore keeps named grid snapshots in a Firestore collection, one
// document per project.
type ProjectStore struct {
	client *firestore.Client
}

// NewProjectStore connects with GOOGLE_APPLICATION_CREDENTIALS when set,
// application default credentials otherwise.
func NewProjectStore(ctx context.Context, projectId string) (*ProjectStore, error) {
	conf := &firebase.Config{ProjectID: projectId}
	var app *firebase.App
	var err error
	if credentials := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); credentials != "" {
		app, err = firebase.NewApp(ctx, conf, option.WithCredentialsFile(credentials))
	} else {
		app, err = firebase.NewApp(ctx, conf)
	}
	if err != nil {
		return nil, err
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, err
	}
	return &ProjectStore{client: client}, nil
}

func (ps *ProjectStore) Close() error {
	return ps.client.Close()
}

func (ps *ProjectStore) SaveProject(ctx context.Context, name string, data *types.BootstrapData) error {
	if name == "" {
		return errors.New("project name is required")
	}
	grid, err := packGrid(data)
	if err != nil {
		return err
	}
	_, err = ps.client.Collection(projectCollection).Doc(name).Set(ctx, projectDoc{
		Name:      name,
		UpdatedAt: time.Now(),
		Records:   len(data.Records),
		Grid:      grid,
	})
	return err
}

func (ps *ProjectStore) LoadProject(ctx context.Context, name string) (*types.BootstrapData, error) {
	snap, err := ps.client.Collection(projectCollection).Doc(name).Get(ctx)
	if err != nil {
		if snap != nil && !snap.Exists() {
			return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, name)
		}
		return nil, err
	}
	doc := &projectDoc{}
	if err := snap.DataTo(doc); err != nil {
		return nil, err
	}
	return unpackGrid(doc.Grid)
}

func (ps *ProjectStore) ListProjects(ctx context.Context) ([]ProjectInfo, error) {
	projects := make([]ProjectInfo, 0)
	iter := ps.client.Collection(projectCollection).Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		info := ProjectInfo{}
		if err := snap.DataTo(&info); err != nil {
			return nil, err
		}
		projects = append(projects, info)
	}
	return projects, nil
}

func (ps *ProjectStore) DeleteProject(ctx context.Context, name string) error {
	_, err := ps.client.Collection(projectCollection).Doc(name).Delete(ctx)
	return err
}

func packGrid(data *types.BootstrapData) ([]byte, error) {
	buf := &bytes.Buffer{}
	zipWriter := gzip.NewWriter(buf)
	if err := json.NewEncoder(zipWriter).Encode(data); err != nil {
		return nil, err
	}
	if err := zipWriter.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unpackGrid(grid []byte) (*types.BootstrapData, error) {
	zipReader, err := gzip.NewReader(bytes.NewReader(grid))
	if err != nil {
		return nil, err
	}
	defer zipReader.Close()
	data := &types.BootstrapData{}
	err = json.NewDecoder(zipReader).Decode(data)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return data, nil
}
