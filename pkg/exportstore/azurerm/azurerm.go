// Package azurerm implements an Azure Blob Storage export store.
package azurerm

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/stackql/stackql-deploy/pkg/exportstore"
)

func init() {
	exportstore.Register("azurerm", NewStore)
}

// Store implements the export store interface for Azure Blob Storage.
type Store struct {
	client        *azblob.Client
	containerName string
}

// NewStore creates an Azure Blob store. The storage account comes from
// "storage_account_name" or the AZURE_STORAGE_ACCOUNT environment
// variable; authentication tries "access_key", "sas_token" and
// "connection_string" before falling back to the default credential
// chain. "endpoint" points the client at an Azurite emulator.
func NewStore(cfg map[string]string) (exportstore.Store, error) {
	containerName, ok := cfg["container_name"]
	if !ok || containerName == "" {
		return nil, fmt.Errorf("azurerm export store requires 'container_name' configuration")
	}

	storageAccount := cfg["storage_account_name"]
	if storageAccount == "" {
		storageAccount = os.Getenv("AZURE_STORAGE_ACCOUNT")
	}
	if storageAccount == "" && cfg["connection_string"] == "" && cfg["endpoint"] == "" {
		return nil, fmt.Errorf("azurerm export store requires 'storage_account_name' configuration or AZURE_STORAGE_ACCOUNT")
	}

	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", storageAccount)
	if endpoint := cfg["endpoint"]; endpoint != "" {
		serviceURL = endpoint
	}

	var client *azblob.Client
	var err error

	switch {
	case cfg["access_key"] != "":
		cred, credErr := azblob.NewSharedKeyCredential(storageAccount, cfg["access_key"])
		if credErr != nil {
			return nil, fmt.Errorf("failed to create shared key credential: %w", credErr)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)

	case cfg["sas_token"] != "":
		sasToken := strings.TrimPrefix(cfg["sas_token"], "?")
		sep := "?"
		if strings.Contains(serviceURL, "?") {
			sep = "&"
		}
		client, err = azblob.NewClientWithNoCredential(serviceURL+sep+sasToken, nil)

	case cfg["connection_string"] != "":
		client, err = azblob.NewClientFromConnectionString(cfg["connection_string"], nil)

	default:
		cred, credErr := azidentity.NewDefaultAzureCredential(nil)
		if credErr != nil {
			return nil, fmt.Errorf("failed to create default Azure credential: %w", credErr)
		}
		client, err = azblob.NewClient(serviceURL, cred, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}

	return &Store{client: client, containerName: containerName}, nil
}

func (s *Store) Type() string {
	return "azurerm"
}

func (s *Store) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.client.DownloadStream(ctx, s.containerName, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, exportstore.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read azurerm://%s/%s: %w", s.containerName, key, err)
	}

	return resp.Body, nil
}

func (s *Store) Write(ctx context.Context, key string, data io.Reader) error {
	content, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("failed to read data: %w", err)
	}

	_, err = s.client.UploadBuffer(ctx, s.containerName, key, content, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: toPtr("application/json"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write azurerm://%s/%s: %w", s.containerName, key, err)
	}

	return nil
}

func toPtr[T any](v T) *T {
	return &v
}
