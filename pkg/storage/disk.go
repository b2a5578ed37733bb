package storage

import (
	"compress/gzip"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"runtime"
	"time"
)

// DiskStorage reads and writes data files under one root folder. Saves go to
// a unique temp file first and rename over the final name, a crashed save
// never leaves a torn file behind.
type DiskStorage struct {
	RootFolder string
}

func NewDiskStorage(rootFolder string) *DiskStorage {
	return &DiskStorage{
		RootFolder: rootFolder,
	}
}

func (ds *DiskStorage) GetFileName(name string) (string, string) {
	fileName := path.Join(ds.RootFolder, name)
	tmpFileName := fileName + ".tmp-" + fmt.Sprintf("%d", time.Now().UnixMilli())
	return fileName, tmpFileName
}

func (p *DiskStorage) SaveGzippedJson(data any, filename string) error {
	fileName, tmpFileName := p.GetFileName(filename)

	file, err := os.Create(tmpFileName)
	if err != nil {
		return err
	}

	defer file.Close()
	defer runtime.GC()
	zipWriter := gzip.NewWriter(file)
	enc := json.NewEncoder(zipWriter)
	defer zipWriter.Close()

	if err = enc.Encode(data); err != nil {
		return err
	}

	return os.Rename(tmpFileName, fileName)
}

func (p *DiskStorage) LoadGzippedJson(data any, filename string) error {
	name, _ := p.GetFileName(filename)
	file, err := os.Open(name)
	if err != nil {
		return err
	}
	defer file.Close()
	defer runtime.GC()

	zipReader, err := gzip.NewReader(file)
	if err != nil {
		return err
	}
	defer zipReader.Close()

	err = json.NewDecoder(zipReader).Decode(data)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}

func (p *DiskStorage) SaveJson(data any, name string) error {
	fileName, tmpFileName := p.GetFileName(name)

	file, err := os.Create(tmpFileName)
	if err != nil {
		return err
	}

	err = json.NewEncoder(file).Encode(data)
	file.Close()
	if err != nil {
		return err
	}

	return os.Rename(tmpFileName, fileName)
}

func (p *DiskStorage) LoadJson(data any, filename string) error {
	name, _ := p.GetFileName(filename)
	file, err := os.Open(name)
	if err != nil {
		return err
	}
	defer file.Close()

	err = json.NewDecoder(file).Decode(data)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}

func (p *DiskStorage) SaveGzippedGob(data any, name string) error {
	fileName, tmpFileName := p.GetFileName(name)

	file, err := os.Create(tmpFileName)
	if err != nil {
		return err
	}

	zipWriter := gzip.NewWriter(file)
	enc := gob.NewEncoder(zipWriter)

	if err = enc.Encode(data); err != nil {
		log.Printf("Error encoding %s: %v", name, err)
		_ = zipWriter.Close()
		_ = file.Close()
		_ = os.Remove(tmpFileName)
		return err
	}

	if err = zipWriter.Close(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpFileName)
		return err
	}

	if err = file.Close(); err != nil {
		_ = os.Remove(tmpFileName)
		return err
	}

	if err = os.Rename(tmpFileName, fileName); err != nil {
		_ = os.Remove(tmpFileName)
		return err
	}

	return nil
}

func (p *DiskStorage) LoadGzippedGob(output any, name string) error {
	fileName, _ := p.GetFileName(name)
	file, err := os.Open(fileName)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("File not found: %s", fileName)
			return nil
		}
		return err
	}

	defer runtime.GC()
	defer file.Close()

	zipReader, err := gzip.NewReader(file)
	if err != nil {
		return err
	}
	defer zipReader.Close()

	err = gob.NewDecoder(zipReader).Decode(output)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}
