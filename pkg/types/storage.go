package types

type StorageProvider interface {
	SaveGzippedJson(data any, filename string) error
	LoadGzippedJson(data any, filename string) error
	SaveJson(data any, filename string) error
	LoadJson(data any, filename string) error
	SaveGzippedGob(data any, filename string) error
	LoadGzippedGob(output any, filename string) error
}
