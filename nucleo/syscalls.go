package nucleo

import (
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/archivos"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/memoria"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
)

// Números de syscall, en el orden del vector de trampa 0x30
const (
	SysHalt = iota
	SysExit
	SysExec
	SysWait
	SysCreate
	SysRemove
	SysOpen
	SysFilesize
	SysRead
	SysWrite
	SysSeek
	SysTell
	SysClose
	SysMmap
	SysMunmap
)

func palabra(v int) uint32 {
	return uint32(int32(v))
}

// tomarFS y soltarFS serializan el filesystem en la frontera de
// syscalls, anotando el dueño para que el camino de salida pueda
// soltarlo si el proceso muere con el lock tomado.
func (k *Kernel) tomarFS(p *Proceso) {
	archivos.MutexFS.Lock()
	p.tieneFS = true
}

func (k *Kernel) soltarFS(p *Proceso) {
	p.tieneFS = false
	archivos.MutexFS.Unlock()
}

// archivoDe devuelve el handle de un fd de archivo; un fd fuera de
// rango o cerrado termina el proceso con -1.
func archivoDe(p *Proceso, fd int) archivos.Archivo {
	if fd < 2 || fd >= memoria.TamTablaFD || p.tablaFD[fd] == nil {
		terminar(-1)
	}
	return p.tablaFD[fd]
}

// Invocar es la instrucción de trampa vista desde el programa: apila el
// número y los argumentos en el stack de usuario y ejecuta INT 0x30.
// Devuelve el valor que quedó en EAX.
func (c *Contexto) Invocar(numero uint32, args ...uint32) uint32 {
	c.EscribirPalabra(c.esp, numero)
	for i, arg := range args {
		c.EscribirPalabra(c.esp+uint32(4*(i+1)), arg)
	}

	marco := &MarcoTrampa{ESP: c.esp}
	c.Syscall(marco)
	return marco.EAX
}

// Syscall es el punto de entrada de la trampa: decodifica el número y
// los argumentos del stack de usuario, validando cada dirección antes
// de usarla. Un número desconocido es un no-op.
func (c *Contexto) Syscall(m *MarcoTrampa) {
	k, p := c.k, c.p

	// Guardar el esp de usuario para los fallos que lleguen en modo kernel
	p.Espacio.EspGuardado = m.ESP

	k.validar(p, m.ESP)
	numero := k.leerPalabra(p, m.ESP, m.ESP)

	arg := func(i int) uint32 {
		dir := m.ESP + uint32(4*i)
		k.validar(p, dir)
		return k.leerPalabra(p, dir, m.ESP)
	}

	switch numero {
	case SysHalt:
		utils.InfoLog.Info("HALT solicitado", "pid", p.PID)
		k.Apagar()

	case SysExit:
		estado := int(int32(arg(1)))
		m.EAX = palabra(estado)
		terminar(estado)

	case SysExec:
		cmdline := k.leerCadena(p, arg(1), m.ESP)
		m.EAX = palabra(k.Ejecutar(cmdline, p))

	case SysWait:
		m.EAX = palabra(k.Esperar(p, int(int32(arg(1)))))

	case SysCreate:
		nombre := k.leerCadena(p, arg(1), m.ESP)
		tamanio := int64(arg(2))
		k.tomarFS(p)
		err := k.FS.Crear(nombre, tamanio)
		k.soltarFS(p)
		if err != nil {
			m.EAX = 0
		} else {
			m.EAX = 1
		}

	case SysRemove:
		nombre := k.leerCadena(p, arg(1), m.ESP)
		k.tomarFS(p)
		err := k.FS.Eliminar(nombre)
		k.soltarFS(p)
		if err != nil {
			m.EAX = 0
		} else {
			m.EAX = 1
		}

	case SysOpen:
		m.EAX = palabra(k.abrir(p, k.leerCadena(p, arg(1), m.ESP)))

	case SysFilesize:
		archivo := archivoDe(p, int(int32(arg(1))))
		k.tomarFS(p)
		m.EAX = palabra(int(archivo.Tamanio()))
		k.soltarFS(p)

	case SysRead:
		m.EAX = palabra(k.leer(p, int(int32(arg(1))), arg(2), int(arg(3)), m.ESP))

	case SysWrite:
		m.EAX = palabra(k.escribir(p, int(int32(arg(1))), arg(2), int(arg(3)), m.ESP))

	case SysSeek:
		archivo := archivoDe(p, int(int32(arg(1))))
		posicion := int64(arg(2))
		k.tomarFS(p)
		archivo.Buscar(posicion)
		k.soltarFS(p)

	case SysTell:
		archivo := archivoDe(p, int(int32(arg(1))))
		k.tomarFS(p)
		m.EAX = palabra(int(archivo.Posicion()))
		k.soltarFS(p)

	case SysClose:
		fd := int(int32(arg(1)))
		archivo := archivoDe(p, fd)
		k.tomarFS(p)
		archivo.Cerrar()
		p.tablaFD[fd] = nil
		k.soltarFS(p)

	case SysMmap:
		m.EAX = palabra(k.mapear(p, int(int32(arg(1))), arg(2)))

	case SysMunmap:
		id := int(int32(arg(1)))
		if err := memoria.EliminarRegion(p.Espacio, k.Marcos, k.Swap, id); err != nil {
			terminar(-1)
		}

	default:
		// Número de syscall desconocido: registro de registros intacto
		utils.ErrorLog.Error("Syscall desconocida", "pid", p.PID, "numero", numero)
	}
}

// abrir busca el primer slot libre de la tabla de FDs a partir de 2
func (k *Kernel) abrir(p *Proceso, nombre string) int {
	k.tomarFS(p)
	defer k.soltarFS(p)

	archivo, err := k.FS.Abrir(nombre)
	if err != nil {
		return -1
	}

	for fd := 2; fd < memoria.TamTablaFD; fd++ {
		if p.tablaFD[fd] == nil {
			p.tablaFD[fd] = archivo
			return fd
		}
	}
	// Tabla llena: el proceso sigue, el archivo no queda colgado
	archivo.Cerrar()
	return -1
}

// leer implementa READ: fd=0 consume el teclado, el resto lee del
// archivo bajo el lock de filesystem. El buffer se toca byte a byte
// antes de tomar el lock para disparar las cargas perezosas.
func (k *Kernel) leer(p *Proceso, fd int, buffer uint32, n int, esp uint32) int {
	if fd < 0 || fd == 1 || fd >= memoria.TamTablaFD {
		terminar(-1)
	}
	for i := 0; i < n; i++ {
		k.tocar(p, buffer+uint32(i), esp)
	}

	if fd == 0 {
		k.tomarFS(p)
		datos := make([]byte, n)
		for i := 0; i < n; i++ {
			datos[i] = k.Teclado.ObtenerCaracter()
		}
		k.soltarFS(p)
		k.escribirUsuario(p, buffer, datos, esp)
		return n
	}

	if p.tablaFD[fd] == nil {
		return -1
	}

	k.tomarFS(p)
	datos := make([]byte, n)
	leidos, err := p.tablaFD[fd].Leer(datos)
	k.soltarFS(p)
	if err != nil {
		return -1
	}

	k.escribirUsuario(p, buffer, datos[:leidos], esp)
	return leidos
}

// escribir implementa WRITE: fd=1 vuelca a consola de una sola vez, el
// resto escribe al archivo bajo el lock de filesystem.
func (k *Kernel) escribir(p *Proceso, fd int, buffer uint32, n int, esp uint32) int {
	if fd < 1 || fd >= memoria.TamTablaFD {
		terminar(-1)
	}
	for i := 0; i < n; i++ {
		k.tocar(p, buffer+uint32(i), esp)
	}

	datos := k.leerUsuario(p, buffer, n, esp)

	if fd == 1 {
		k.tomarFS(p)
		k.Consola.Write(datos)
		k.soltarFS(p)
		return n
	}

	if p.tablaFD[fd] == nil {
		return -1
	}

	k.tomarFS(p)
	escritos, err := p.tablaFD[fd].Escribir(datos)
	k.soltarFS(p)
	if err != nil {
		return -1
	}
	return escritos
}

// mapear implementa MMAP: valida el fd y delega en el registro de
// regiones; los rechazos devuelven -1 sin matar al proceso.
func (k *Kernel) mapear(p *Proceso, fd int, dir uint32) int {
	if fd == 0 || fd == 1 || fd < 0 || fd >= memoria.TamTablaFD {
		return -1
	}
	if p.tablaFD[fd] == nil {
		return -1
	}

	id, err := memoria.CrearRegion(p.Espacio, p.tablaFD[fd], fd, dir)
	if err != nil {
		utils.InfoLog.Info("mmap rechazado", "pid", p.PID, "fd", fd, "error", err)
		return -1
	}
	return id
}
