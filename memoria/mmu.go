package memoria

import (
	"sync"
)

// DirectorioPaginas es la interfaz de la MMU: el hardware de paginación
// se consume como primitiva opaca que instala y borra traducciones y
// expone los bits de sucio/accedido.
type DirectorioPaginas interface {
	// Instalar crea la traducción página virtual → marco. Devuelve
	// false si la página ya estaba mapeada.
	Instalar(dir uint32, marco int, escribible bool) bool
	// Limpiar borra la traducción; los bits se pierden
	Limpiar(dir uint32)
	// ObtenerMarco devuelve el marco mapeado o MarcoInvalido
	ObtenerMarco(dir uint32) int
	// EsEscribible consulta el bit de escritura de la traducción
	EsEscribible(dir uint32) bool
	EstaSucia(dir uint32) bool
	FueAccedida(dir uint32) bool
	LimpiarAccedida(dir uint32)
	// RegistrarAcceso simula el lado hardware: todo acceso prende el
	// bit de accedida y las escrituras además el de sucia
	RegistrarAcceso(dir uint32, escritura bool)
}

type entradaDirectorio struct {
	marco      int
	escribible bool
	sucia      bool
	accedida   bool
}

// DirectorioSimulado es la MMU simulada: un mapa página→marco con los
// bits que el hardware real mantiene en las entradas de tabla.
type DirectorioSimulado struct {
	mu       sync.Mutex
	entradas map[uint32]*entradaDirectorio
}

// NuevoDirectorio crea un directorio de páginas vacío
func NuevoDirectorio() *DirectorioSimulado {
	return &DirectorioSimulado{
		entradas: make(map[uint32]*entradaDirectorio),
	}
}

func (d *DirectorioSimulado) Instalar(dir uint32, marco int, escribible bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	pagina := RedondearAPagina(dir)
	if _, existe := d.entradas[pagina]; existe {
		return false
	}
	d.entradas[pagina] = &entradaDirectorio{marco: marco, escribible: escribible}
	return true
}

func (d *DirectorioSimulado) Limpiar(dir uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entradas, RedondearAPagina(dir))
}

func (d *DirectorioSimulado) ObtenerMarco(dir uint32) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, existe := d.entradas[RedondearAPagina(dir)]; existe {
		return e.marco
	}
	return MarcoInvalido
}

func (d *DirectorioSimulado) EsEscribible(dir uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, existe := d.entradas[RedondearAPagina(dir)]; existe {
		return e.escribible
	}
	return false
}

func (d *DirectorioSimulado) EstaSucia(dir uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, existe := d.entradas[RedondearAPagina(dir)]; existe {
		return e.sucia
	}
	return false
}

func (d *DirectorioSimulado) FueAccedida(dir uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, existe := d.entradas[RedondearAPagina(dir)]; existe {
		return e.accedida
	}
	return false
}

func (d *DirectorioSimulado) LimpiarAccedida(dir uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, existe := d.entradas[RedondearAPagina(dir)]; existe {
		e.accedida = false
	}
}

func (d *DirectorioSimulado) RegistrarAcceso(dir uint32, escritura bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, existe := d.entradas[RedondearAPagina(dir)]; existe {
		e.accedida = true
		if escritura {
			e.sucia = true
		}
	}
}
