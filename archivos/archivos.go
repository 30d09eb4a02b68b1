// Package archivos define la interfaz de sistema de archivos que consume
// el núcleo y una implementación sobre un directorio del host. Todas las
// operaciones son bloqueantes; la serialización la impone el llamador a
// través de MutexFS.
package archivos

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
)

// MutexFS es el lock global del sistema de archivos. Se toma en la
// frontera de cada syscall de archivos, en el writeback de mmap y en las
// lecturas de carga perezosa. Orden de adquisición: tabla de marcos →
// bitmap de swap → MutexFS.
var MutexFS sync.Mutex

// Archivo es un handle abierto con posición de lectura/escritura propia
type Archivo interface {
	Leer(b []byte) (int, error)
	Escribir(b []byte) (int, error)
	LeerEn(b []byte, offset int64) (int, error)
	EscribirEn(b []byte, offset int64) (int, error)
	Buscar(posicion int64)
	Posicion() int64
	Tamanio() int64
	Reabrir() (Archivo, error)
	Cerrar() error
}

// Sistema es el contrato del sistema de archivos subyacente
type Sistema interface {
	Abrir(nombre string) (Archivo, error)
	Crear(nombre string, tamanio int64) error
	Eliminar(nombre string) error
}

// SistemaDirectorio implementa Sistema sobre un directorio del host:
// cada archivo del FS simulado es un archivo plano dentro de la raíz.
type SistemaDirectorio struct {
	raiz string
}

// NuevoSistemaDirectorio crea la raíz si no existe
func NuevoSistemaDirectorio(raiz string) (*SistemaDirectorio, error) {
	if err := os.MkdirAll(raiz, 0755); err != nil {
		return nil, fmt.Errorf("error al crear directorio raíz %s: %v", raiz, err)
	}
	utils.InfoLog.Info("Sistema de archivos inicializado", "raiz", raiz)
	return &SistemaDirectorio{raiz: raiz}, nil
}

func (s *SistemaDirectorio) ruta(nombre string) string {
	// Los nombres son planos: sin subdirectorios ni escapes de la raíz
	return filepath.Join(s.raiz, filepath.Base(nombre))
}

func (s *SistemaDirectorio) Abrir(nombre string) (Archivo, error) {
	f, err := os.OpenFile(s.ruta(nombre), os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("error al abrir %s: %v", nombre, err)
	}
	return &archivoHost{f: f}, nil
}

func (s *SistemaDirectorio) Crear(nombre string, tamanio int64) error {
	ruta := s.ruta(nombre)
	if _, err := os.Stat(ruta); err == nil {
		return fmt.Errorf("el archivo %s ya existe", nombre)
	}
	f, err := os.Create(ruta)
	if err != nil {
		return fmt.Errorf("error al crear %s: %v", nombre, err)
	}
	defer f.Close()
	if err := f.Truncate(tamanio); err != nil {
		return fmt.Errorf("error al dimensionar %s: %v", nombre, err)
	}
	return nil
}

func (s *SistemaDirectorio) Eliminar(nombre string) error {
	if err := os.Remove(s.ruta(nombre)); err != nil {
		return fmt.Errorf("error al eliminar %s: %v", nombre, err)
	}
	return nil
}

// archivoHost envuelve un os.File con posición propia, para que los
// handles reabiertos tengan cursores independientes.
type archivoHost struct {
	f   *os.File
	pos int64
}

func (a *archivoHost) Leer(b []byte) (int, error) {
	n, err := a.f.ReadAt(b, a.pos)
	a.pos += int64(n)
	if err == io.EOF {
		err = nil
	}
	return n, err
}

func (a *archivoHost) Escribir(b []byte) (int, error) {
	n, err := a.f.WriteAt(b, a.pos)
	a.pos += int64(n)
	return n, err
}

func (a *archivoHost) LeerEn(b []byte, offset int64) (int, error) {
	n, err := a.f.ReadAt(b, offset)
	if err == io.EOF {
		err = nil
	}
	return n, err
}

func (a *archivoHost) EscribirEn(b []byte, offset int64) (int, error) {
	return a.f.WriteAt(b, offset)
}

func (a *archivoHost) Buscar(posicion int64) {
	a.pos = posicion
}

func (a *archivoHost) Posicion() int64 {
	return a.pos
}

func (a *archivoHost) Tamanio() int64 {
	info, err := a.f.Stat()
	if err != nil {
		return 0
	}
	return info.Size()
}

func (a *archivoHost) Reabrir() (Archivo, error) {
	f, err := os.OpenFile(a.f.Name(), os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("error al reabrir %s: %v", a.f.Name(), err)
	}
	return &archivoHost{f: f}, nil
}

func (a *archivoHost) Cerrar() error {
	return a.f.Close()
}
