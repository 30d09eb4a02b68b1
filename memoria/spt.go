package memoria

import (
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/archivos"
)

// Espacio es el espacio de direcciones de un proceso: el directorio de
// páginas (MMU), la tabla suplementaria y las regiones mmap. El proceso
// dueño es el único escritor de la tabla, con una excepción: el desalojo
// muta los campos de residencia de una entrada ajena bajo el lock de la
// tabla de marcos.
type Espacio struct {
	PID        int
	Directorio DirectorioPaginas

	mu  sync.Mutex
	spt *btree.BTreeG[*Pagina]

	regiones      []*RegionMmap
	proximaRegion int

	// FinDatos es el final del segmento de datos: mmap no puede mapear
	// por debajo
	FinDatos uint32

	// EspGuardado es el stack pointer de usuario guardado para resolver
	// fallos que llegan en modo kernel
	EspGuardado uint32
}

// NuevoEspacio crea un espacio vacío para un proceso
func NuevoEspacio(pid int, directorio DirectorioPaginas) *Espacio {
	return &Espacio{
		PID:        pid,
		Directorio: directorio,
		spt: btree.NewG(8, func(a, b *Pagina) bool {
			return a.Direccion < b.Direccion
		}),
	}
}

// InsertarPagina crea y registra una entrada en la tabla suplementaria.
// Insertar sobre una clave ocupada es un error de programación.
func (e *Espacio) InsertarPagina(archivo archivos.Archivo, offset int64, dir uint32, bytesArchivo int, bytesCero int, escribible bool, proposito Proposito) *Pagina {
	if dir != RedondearAPagina(dir) {
		panic(fmt.Sprintf("dirección de página sin alinear: %#x", dir))
	}
	if bytesArchivo+bytesCero != TamPagina {
		panic(fmt.Sprintf("página %#x: bytes de archivo (%d) + bytes cero (%d) != TamPagina", dir, bytesArchivo, bytesCero))
	}
	if dir >= BaseKernel {
		panic(fmt.Sprintf("página %#x cruza la frontera de kernel", dir))
	}

	pagina := &Pagina{
		Direccion:    dir,
		Proposito:    proposito,
		Archivo:      archivo,
		Offset:       offset,
		BytesArchivo: bytesArchivo,
		BytesCero:    bytesCero,
		Escribible:   escribible,
		Marco:        MarcoInvalido,
		SlotSwap:     SlotInvalido,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, existe := e.spt.Get(pagina); existe {
		panic(fmt.Sprintf("entrada duplicada en SPT: PID %d, página %#x", e.PID, dir))
	}
	e.spt.ReplaceOrInsert(pagina)
	return pagina
}

// BuscarPagina devuelve la entrada para una dirección (se alinea sola)
// o nil si no existe.
func (e *Espacio) BuscarPagina(dir uint32) *Pagina {
	e.mu.Lock()
	defer e.mu.Unlock()

	pagina, existe := e.spt.Get(&Pagina{Direccion: RedondearAPagina(dir)})
	if !existe {
		return nil
	}
	return pagina
}

// EliminarPagina saca la entrada de la tabla y limpia su back-link
func (e *Espacio) EliminarPagina(dir uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if pagina, existe := e.spt.Delete(&Pagina{Direccion: RedondearAPagina(dir)}); existe {
		pagina.Region = nil
	}
}

// RecorrerPaginas visita las entradas en orden de dirección. El visitor
// no debe mutar la tabla; para teardown usar PaginasOrdenadas.
func (e *Espacio) RecorrerPaginas(visitar func(*Pagina) bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.spt.Ascend(func(p *Pagina) bool {
		return visitar(p)
	})
}

// PaginasOrdenadas devuelve una copia de las entradas, para recorridos
// que eliminan mientras iteran (teardown de proceso).
func (e *Espacio) PaginasOrdenadas() []*Pagina {
	e.mu.Lock()
	defer e.mu.Unlock()

	paginas := make([]*Pagina, 0, e.spt.Len())
	e.spt.Ascend(func(p *Pagina) bool {
		paginas = append(paginas, p)
		return true
	})
	return paginas
}

// RangoOcupado informa si alguna página del rango [desde, desde+n·pag)
// ya tiene entrada en la tabla.
func (e *Espacio) RangoOcupado(desde uint32, paginas int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	ocupado := false
	hasta := desde + uint32(paginas)*TamPagina
	e.spt.AscendRange(&Pagina{Direccion: desde}, &Pagina{Direccion: hasta}, func(p *Pagina) bool {
		ocupado = true
		return false
	})
	return ocupado
}

// Regiones devuelve las regiones mmap vivas del proceso
func (e *Espacio) Regiones() []*RegionMmap {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*RegionMmap(nil), e.regiones...)
}
