package memoria

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
)

// DispositivoSwap administra la partición de swap: un archivo plano
// dividido en slots de TamPagina, con un bitmap de ocupación. El
// contenido es efímero: el archivo se trunca en cada boot.
type DispositivoSwap struct {
	mu      sync.Mutex
	archivo *os.File
	mapa    *bitset.BitSet
	slots   int
	retardo int
}

// NuevoDispositivoSwap crea o trunca el archivo de swap y lo
// dimensiona a la cantidad de slots pedida.
func NuevoDispositivoSwap(ruta string, slots int, retardoMs int) (*DispositivoSwap, error) {
	utils.InfoLog.Info("Inicializando área de swap", "archivo", ruta, "slots", slots)

	dir := filepath.Dir(ruta)
	if err := os.MkdirAll(dir, 0755); err != nil {
		utils.ErrorLog.Error("Error creando directorio para swap", "directorio", dir, "error", err)
		return nil, fmt.Errorf("error al crear directorio para swap: %v", err)
	}

	archivo, err := os.Create(ruta)
	if err != nil {
		utils.ErrorLog.Error("Error creando archivo de swap", "archivo", ruta, "error", err)
		return nil, fmt.Errorf("error al crear archivo de swap: %v", err)
	}
	if err := archivo.Truncate(int64(slots) * TamPagina); err != nil {
		archivo.Close()
		return nil, fmt.Errorf("error al dimensionar archivo de swap: %v", err)
	}

	utils.InfoLog.Info("Área de swap inicializada", "archivo", ruta, "bytes", slots*TamPagina)

	return &DispositivoSwap{
		archivo: archivo,
		mapa:    bitset.New(uint(slots)),
		slots:   slots,
		retardo: retardoMs,
	}, nil
}

// AsignarSlot reserva el primer slot libre. Falla si el swap está lleno.
func (sd *DispositivoSwap) AsignarSlot() (int, error) {
	sd.mu.Lock()
	defer sd.mu.Unlock()

	slot, ok := sd.mapa.NextClear(0)
	if !ok || slot >= uint(sd.slots) {
		utils.ErrorLog.Error("Swap lleno", "slots", sd.slots)
		return SlotInvalido, fmt.Errorf("no hay slots libres en swap (%d slots)", sd.slots)
	}
	sd.mapa.Set(slot)
	return int(slot), nil
}

// LiberarSlot devuelve un slot al bitmap
func (sd *DispositivoSwap) LiberarSlot(slot int) {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	sd.mapa.Clear(uint(slot))
}

// SlotsUsados devuelve la cantidad de bits prendidos del bitmap
func (sd *DispositivoSwap) SlotsUsados() int {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	return int(sd.mapa.Count())
}

// Leer copia un slot completo al marco destino. El slot sigue asignado;
// liberar es decisión del llamador. El marco destino debe estar pinneado.
func (sd *DispositivoSwap) Leer(slot int, destino []byte) error {
	if err := sd.verificarSlot(slot, len(destino)); err != nil {
		return err
	}

	utils.AplicarRetardo("swap", sd.retardo)

	base := int64(slot) * TamPagina
	for sector := 0; sector < SectoresPorSlot; sector++ {
		desde := sector * TamSector
		if _, err := sd.archivo.ReadAt(destino[desde:desde+TamSector], base+int64(desde)); err != nil {
			utils.ErrorLog.Error("Error leyendo de swap", "slot", slot, "sector", sector, "error", err)
			return fmt.Errorf("error al leer slot %d de swap: %v", slot, err)
		}
	}
	return nil
}

// Escribir copia un marco completo al slot
func (sd *DispositivoSwap) Escribir(slot int, origen []byte) error {
	if err := sd.verificarSlot(slot, len(origen)); err != nil {
		return err
	}

	utils.AplicarRetardo("swap", sd.retardo)

	base := int64(slot) * TamPagina
	for sector := 0; sector < SectoresPorSlot; sector++ {
		desde := sector * TamSector
		if _, err := sd.archivo.WriteAt(origen[desde:desde+TamSector], base+int64(desde)); err != nil {
			utils.ErrorLog.Error("Error escribiendo en swap", "slot", slot, "sector", sector, "error", err)
			return fmt.Errorf("error al escribir slot %d de swap: %v", slot, err)
		}
	}
	return nil
}

func (sd *DispositivoSwap) verificarSlot(slot int, tam int) error {
	if slot < 0 || slot >= sd.slots {
		panic(fmt.Sprintf("slot de swap fuera de rango: %d", slot))
	}
	if tam != TamPagina {
		panic(fmt.Sprintf("transferencia de swap de tamaño inválido: %d", tam))
	}
	return nil
}

// Cerrar cierra el archivo de respaldo
func (sd *DispositivoSwap) Cerrar() error {
	return sd.archivo.Close()
}
