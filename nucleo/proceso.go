// Package nucleo implementa los procesos de usuario y la frontera
// usuario/kernel: la trampa de syscalls, la tabla de file descriptors y
// el camino único de salida que libera memoria, swap y archivos.
package nucleo

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/archivos"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/memoria"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
)

const (
	EstadoNew   = "NEW"
	EstadoReady = "READY"
	EstadoExec  = "EXEC"
	EstadoExit  = "EXIT"
)

// Proceso es el PCB: identidad, espacio de direcciones, tabla de FDs y
// la sincronización padre/hijo de EXEC y WAIT.
type Proceso struct {
	PID     int
	Nombre  string
	Estado  string
	Espacio *memoria.Espacio

	HoraCreacion     time.Time
	HoraFinalizacion time.Time

	tablaFD    [memoria.TamTablaFD]archivos.Archivo
	ejecutable archivos.Archivo

	padre *Proceso
	hijos []*Proceso

	// SemCarga se libera cuando el hijo terminó (bien o mal) la carga
	// de su ejecutable; SemFin cuando el proceso finalizó.
	SemCarga *utils.Semaforo
	SemFin   *utils.Semaforo

	cargaOK      bool
	estadoSalida int
	esperado     bool
	tieneFS      bool
	terminado    bool
}

// EstadoSalida devuelve el estado registrado al finalizar
func (p *Proceso) EstadoSalida() int {
	return p.estadoSalida
}

// Terminado informa si el proceso ya pasó por el camino de salida
func (p *Proceso) Terminado() bool {
	return p.terminado
}

// Teclado es el dispositivo de entrada que consume read(fd=0)
type Teclado interface {
	ObtenerCaracter() byte
}

// Programa es el cuerpo de un proceso de usuario: código que opera
// sobre su espacio de direcciones a través del Contexto.
type Programa func(c *Contexto)

// Config es la configuración del kernel
type Config struct {
	TamMemoria     int    `json:"TAM_MEMORIA"`
	SlotsSwap      int    `json:"SLOTS_SWAP"`
	RutaSwap       string `json:"SWAPFILE_PATH"`
	RetardoMemoria int    `json:"RETARDO_MEMORIA"`
	RetardoSwap    int    `json:"RETARDO_SWAP"`
	RutaFS         string `json:"RUTA_FS"`
	RutaDump       string `json:"DUMP_PATH"`
	LogLevel       string `json:"LOG_LEVEL"`
	IPMonitor      string `json:"IP_MONITOR"`
	PuertoMonitor  int    `json:"PUERTO_MONITOR"`
}

// Kernel agrupa los singletons del sistema: tabla de marcos, swap,
// resolutor de fallos, métricas y filesystem. Se inicializa en el boot
// y nunca se desarma.
type Kernel struct {
	Marcos    *memoria.TablaMarcos
	Swap      *memoria.DispositivoSwap
	Resolutor *memoria.Resolutor
	Metricas  *memoria.RegistroMetricas
	FS        archivos.Sistema

	Consola io.Writer
	Teclado Teclado
	Apagar  func()

	RutaDump string

	mu         sync.Mutex
	procesos   map[int]*Proceso
	proximoPID int
	programas  map[string]Programa
}

// NuevoKernel arma los singletons a partir de la configuración
func NuevoKernel(config *Config, fs archivos.Sistema) (*Kernel, error) {
	swap, err := memoria.NuevoDispositivoSwap(config.RutaSwap, config.SlotsSwap, config.RetardoSwap)
	if err != nil {
		return nil, err
	}

	metricas := memoria.NuevoRegistroMetricas()
	marcos := memoria.NuevaTablaMarcos(config.TamMemoria, swap, metricas, config.RetardoMemoria)

	k := &Kernel{
		Marcos:    marcos,
		Swap:      swap,
		Resolutor: memoria.NuevoResolutor(marcos, swap, metricas),
		Metricas:  metricas,
		FS:        fs,
		Consola:   os.Stdout,
		Teclado:   NuevoTecladoConsola(),
		Apagar:    func() { os.Exit(0) },
		RutaDump:  config.RutaDump,
		procesos:  make(map[int]*Proceso),
		programas: make(map[string]Programa),
	}

	utils.InfoLog.Info("Kernel inicializado", "memoria_bytes", config.TamMemoria, "slots_swap", config.SlotsSwap)
	return k, nil
}

// RegistrarPrograma asocia un nombre de ejecutable con el código que
// corre el proceso al ser ejecutado.
func (k *Kernel) RegistrarPrograma(nombre string, programa Programa) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.programas[nombre] = programa
}

// Proceso devuelve el PCB de un PID, o nil
func (k *Kernel) Proceso(pid int) *Proceso {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.procesos[pid]
}

func (k *Kernel) crearProceso(nombre string, padre *Proceso) *Proceso {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.proximoPID++
	p := &Proceso{
		PID:          k.proximoPID,
		Nombre:       nombre,
		Estado:       EstadoNew,
		Espacio:      memoria.NuevoEspacio(k.proximoPID, memoria.NuevoDirectorio()),
		HoraCreacion: time.Now(),
		padre:        padre,
		SemCarga:     utils.NewSemaforoTomado(),
		SemFin:       utils.NewSemaforoTomado(),
	}
	k.procesos[p.PID] = p
	if padre != nil {
		padre.hijos = append(padre.hijos, p)
	}

	utils.InfoLog.Info(fmt.Sprintf("(%d) - Se crea el proceso - Estado: %s", p.PID, p.Estado))
	return p
}

// Ejecutar crea un proceso para la línea de comando, espera el fin de
// su carga y devuelve el PID, o -1 si la carga falló. El primer campo
// de la línea es el nombre del ejecutable.
func (k *Kernel) Ejecutar(cmdline string, padre *Proceso) int {
	campos := strings.Fields(cmdline)
	if len(campos) == 0 {
		return -1
	}

	hijo := k.crearProceso(campos[0], padre)
	go k.correrProceso(hijo)

	hijo.SemCarga.Wait()
	if !hijo.cargaOK {
		return -1
	}
	return hijo.PID
}

// correrProceso es la goroutine del proceso: carga el ejecutable,
// avisa al padre y corre el programa registrado para su nombre.
func (k *Kernel) correrProceso(p *Proceso) {
	err := k.cargarEjecutable(p)
	p.cargaOK = err == nil
	p.SemCarga.Signal()

	if err != nil {
		utils.ErrorLog.Error("Carga de ejecutable falló", "pid", p.PID, "nombre", p.Nombre, "error", err)
		k.Finalizar(p, -1)
		return
	}

	p.Estado = EstadoExec

	k.mu.Lock()
	programa := k.programas[p.Nombre]
	k.mu.Unlock()

	if programa != nil {
		if terminado, _ := k.EjecutarEn(p, programa); terminado {
			return
		}
	}
	// Un programa que retorna sin llamar a EXIT sale con 0
	k.Finalizar(p, 0)
}

// Esperar implementa WAIT: bloquea hasta que el hijo directo termine y
// devuelve su estado de salida. Cada hijo se espera a lo sumo una vez.
func (k *Kernel) Esperar(p *Proceso, pid int) int {
	k.mu.Lock()
	var hijo *Proceso
	for _, h := range p.hijos {
		if h.PID == pid {
			hijo = h
			break
		}
	}
	if hijo == nil || hijo.esperado {
		k.mu.Unlock()
		return -1
	}
	hijo.esperado = true
	k.mu.Unlock()

	hijo.SemFin.Wait()
	return hijo.estadoSalida
}

// Finalizar es el camino único de salida: imprime la línea canónica,
// deshace los mapeos mmap (con writeback), devuelve marcos y slots de
// swap recorriendo la SPT, cierra la tabla de FDs y despierta al padre.
func (k *Kernel) Finalizar(p *Proceso, estado int) {
	k.mu.Lock()
	if p.terminado {
		k.mu.Unlock()
		return
	}
	p.terminado = true
	k.mu.Unlock()

	p.estadoSalida = estado
	p.Estado = EstadoExit
	p.HoraFinalizacion = time.Now()

	fmt.Fprintf(k.Consola, "%s: exit(%d)\n", p.Nombre, estado)
	utils.InfoLog.Info(fmt.Sprintf("## PID: %d - Finaliza el proceso - Estado: %d", p.PID, estado))

	// Un proceso que muere con el lock de filesystem tomado lo suelta acá
	if p.tieneFS {
		p.tieneFS = false
		archivos.MutexFS.Unlock()
	}

	for _, region := range p.Espacio.Regiones() {
		if err := memoria.EliminarRegion(p.Espacio, k.Marcos, k.Swap, region.ID); err != nil {
			utils.ErrorLog.Error("Error desmapeando región en exit", "pid", p.PID, "id", region.ID, "error", err)
		}
	}

	for _, pagina := range p.Espacio.PaginasOrdenadas() {
		if pagina.Marco != memoria.MarcoInvalido {
			k.Marcos.Liberar(pagina.Marco)
		}
		p.Espacio.Directorio.Limpiar(pagina.Direccion)
		if pagina.EnSwap {
			k.Swap.LiberarSlot(pagina.SlotSwap)
		}
		p.Espacio.EliminarPagina(pagina.Direccion)
	}

	archivos.MutexFS.Lock()
	for fd := 2; fd < memoria.TamTablaFD; fd++ {
		if p.tablaFD[fd] != nil {
			p.tablaFD[fd].Cerrar()
			p.tablaFD[fd] = nil
		}
	}
	if p.ejecutable != nil {
		p.ejecutable.Cerrar()
		p.ejecutable = nil
	}
	archivos.MutexFS.Unlock()

	p.SemFin.Signal()
}
